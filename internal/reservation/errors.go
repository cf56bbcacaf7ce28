package reservation

import "errors"

// Sentinel errors returned by the manager.  Handlers translate these into
// HTTP responses; seat-level detail travels in inventory.ConflictError and
// the UnknownSeatError types, which pass through unchanged.
var (
	// ErrUnknownReservation is returned for reservation IDs the manager
	// has never issued.
	ErrUnknownReservation = errors.New("reservation: unknown reservation")

	// ErrNotOwner is returned when a caller operates on someone else's
	// reservation.
	ErrNotOwner = errors.New("reservation: reservation belongs to a different user")

	// ErrEmptySeatSet rejects hold requests with no seats.
	ErrEmptySeatSet = errors.New("reservation: seat set must not be empty")

	// ErrDuplicateSeats rejects hold requests naming the same seat twice.
	ErrDuplicateSeats = errors.New("reservation: duplicate seat ids in request")

	// ErrInvalidShowtime is returned for showtimes that were never
	// registered.  Caller error, not retried.
	ErrInvalidShowtime = errors.New("reservation: unknown showtime")

	// ErrReservationExpired means the hold TTL elapsed before confirm.
	// Recoverable: the caller must create a fresh hold.
	ErrReservationExpired = errors.New("reservation: hold expired")

	// ErrReservationCancelled means the reservation was already released,
	// either by the user or after a failed payment.
	ErrReservationCancelled = errors.New("reservation: reservation was cancelled")

	// ErrPaymentFailed means the external collaborator declined or timed
	// out.  Seats are released; the caller may retry with a fresh hold.
	ErrPaymentFailed = errors.New("reservation: payment failed")

	// ErrAlreadyConfirmed is returned for a duplicate confirm whose
	// idempotency key does not match the one that confirmed.
	ErrAlreadyConfirmed = errors.New("reservation: already confirmed with a different idempotency key")

	// ErrStorageFailure means payment succeeded and the seats are BOOKED,
	// but the ledger append kept failing.  The booking is retained in
	// memory and re-appended on the next confirm retry with the same
	// idempotency key; this error must be surfaced loudly.
	ErrStorageFailure = errors.New("reservation: ledger append failed after payment; booking pending record")
)
