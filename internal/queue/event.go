// Package queue defines message payloads exchanged over the message broker
// and the publisher/consumer pair for the booking.confirmed queue.
package queue

// BookingConfirmedEvent is published when a reservation is successfully
// confirmed and its booking has been appended to the ledger.  It carries
// enough information for downstream consumers to log, notify, or feed
// analytics without querying the primary database.
type BookingConfirmedEvent struct {
	BookingID     string   `json:"booking_id"`
	ReservationID string   `json:"reservation_id"`
	UserID        string   `json:"user_id"`
	ShowtimeID    string   `json:"showtime_id"`
	MovieID       string   `json:"movie_id"`
	TheaterID     string   `json:"theater_id"`
	Seats         []string `json:"seats"`
	TotalUnits    int64    `json:"total_units"`
	Reference     string   `json:"reference"`
	ConfirmedAt   string   `json:"confirmed_at"`
}
