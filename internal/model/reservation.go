package model

import "time"

// ReservationStatus is the lifecycle state of a hold.  PENDING is the only
// non-terminal state; a reservation leaves it exactly once.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Reservation is an ephemeral, time-boxed claim on a non-empty set of seats
// belonging to one showtime.  It is created by a hold request and destroyed
// by confirm, explicit cancel, or TTL expiry.  TotalUnits is quoted at hold
// time from the showtime's fixed section prices.
type Reservation struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	ShowtimeID string            `json:"showtime_id"`
	SeatIDs    []SeatID          `json:"seat_ids"`
	TotalUnits int64             `json:"total_units"`
	Status     ReservationStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}
