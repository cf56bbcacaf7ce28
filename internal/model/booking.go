package model

import "time"

// Booking is the durable, immutable record created from a successfully
// confirmed reservation.  Once appended to the ledger it is never mutated.
// Reference is a short human-facing code printed on the ticket.
type Booking struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	ShowtimeID    string    `json:"showtime_id"`
	SeatIDs       []SeatID  `json:"seat_ids"`
	TotalUnits    int64     `json:"total_units"`
	Reference     string    `json:"reference"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}
