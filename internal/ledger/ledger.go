// Package ledger is the durable, append-only store of confirmed bookings.
// Records are never updated or deleted; a retried append for the same
// reservation returns the record written by the first attempt.
package ledger

import (
	"context"
	"errors"

	"github.com/showtix/booking/internal/model"
)

// ErrNotFound is returned by Get when no booking exists with the given ID.
var ErrNotFound = errors.New("ledger: booking not found")

// Store is the ledger boundary used by the reservation manager and the
// booking query handlers.  Append must be idempotent on ReservationID:
// retried confirms (e.g. after a client timeout) must not create duplicate
// bookings.
type Store interface {
	// Append writes a booking and returns the stored record.  When a
	// booking for the same reservation already exists, the existing
	// record is returned instead and nothing is written.
	Append(ctx context.Context, b *model.Booking) (*model.Booking, error)

	// ListByUser returns a user's bookings ordered by confirmation time
	// descending.
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)

	// Get returns a single booking or ErrNotFound.
	Get(ctx context.Context, bookingID string) (*model.Booking, error)

	// SeatsByShowtime returns every seat booked for a showtime across all
	// records.  Used to rehydrate inventory state at startup.
	SeatsByShowtime(ctx context.Context, showtimeID string) ([]model.SeatID, error)
}
