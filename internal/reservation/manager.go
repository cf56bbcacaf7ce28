// Package reservation orchestrates the hold → confirm/cancel protocol.
// The manager is the only writer of seat status transitions: handlers and
// background jobs go through it, never through the inventory directly.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/showtix/booking/internal/inventory"
	"github.com/showtix/booking/internal/model"
	"github.com/showtix/booking/internal/pricing"
	"github.com/showtix/booking/internal/queue"
)

// Ledger is the slice of the booking ledger the manager needs.  Append
// must be idempotent on the booking's reservation ID.
type Ledger interface {
	Append(ctx context.Context, b *model.Booking) (*model.Booking, error)
}

// PaymentProvider charges the quoted total against an opaque payment
// reference.  A nil error is the only success signal; timeouts must come
// back as errors.
type PaymentProvider interface {
	Charge(ctx context.Context, amountUnits int64, paymentRef string) error
}

// EventPublisher receives a best-effort notification after each confirmed
// booking.  May be nil.
type EventPublisher interface {
	BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// SnapshotCache is invalidated after every seat mutation so display reads
// converge quickly.  May be nil.
type SnapshotCache interface {
	Invalidate(ctx context.Context, showtimeID string)
}

// Config carries the manager's tunables.  Zero values fall back to the
// defaults below.
type Config struct {
	HoldTTL        time.Duration // how long a hold blocks seats without a confirm
	ReaperInterval time.Duration // how often expired holds are swept
	PaymentTimeout time.Duration // upper bound on one charge call
	AppendRetries  int           // internal retries of a failed ledger append
	AppendBackoff  time.Duration // initial backoff between append retries
	Retention      time.Duration // how long finished reservations stay queryable in memory
}

func (c Config) withDefaults() Config {
	if c.HoldTTL <= 0 {
		c.HoldTTL = 5 * time.Minute
	}
	if c.ReaperInterval <= 0 {
		c.ReaperInterval = 30 * time.Second
	}
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = 15 * time.Second
	}
	if c.AppendRetries <= 0 {
		c.AppendRetries = 3
	}
	if c.AppendBackoff <= 0 {
		c.AppendBackoff = 100 * time.Millisecond
	}
	if c.Retention <= 0 {
		c.Retention = 15 * time.Minute
	}
	return c
}

// showtimeMeta is the catalog detail carried into published events.
type showtimeMeta struct {
	movieID   string
	theaterID string
}

// reservationState is one reservation plus everything confirm needs to be
// idempotent.  Its mutex serialises confirm, cancel and the reaper for
// this reservation; combined with the inventory's per-showtime mutex it
// guarantees exactly one of {confirm succeeds, hold reclaimed}.
type reservationState struct {
	mu      sync.Mutex
	res     model.Reservation
	idemKey string
	booking *model.Booking // stored ledger record, nil until appended
	pending *model.Booking // built but not yet appended (storage failure)
	doneAt  time.Time      // when the reservation reached a terminal, fully recorded state
}

// Manager owns the reservation lifecycle.  Reservations are ephemeral:
// every one of them dies by confirm, cancel or TTL, so they live in memory
// and everything durable goes through the ledger.
type Manager struct {
	inv       *inventory.Inventory
	prices    *pricing.Engine
	ledger    Ledger
	payments  PaymentProvider
	events    EventPublisher
	snapshots SnapshotCache
	cfg       Config

	mu           sync.Mutex
	reservations map[string]*reservationState
	meta         map[string]showtimeMeta
}

// NewManager wires the manager.  events and snapshots may be nil; inv,
// prices, led and pay must not be.
func NewManager(inv *inventory.Inventory, prices *pricing.Engine, led Ledger, pay PaymentProvider, events EventPublisher, snapshots SnapshotCache, cfg Config) *Manager {
	if inv == nil || prices == nil || led == nil || pay == nil {
		panic("nil dependency passed to NewManager")
	}
	return &Manager{
		inv:          inv,
		prices:       prices,
		ledger:       led,
		payments:     pay,
		events:       events,
		snapshots:    snapshots,
		cfg:          cfg.withDefaults(),
		reservations: make(map[string]*reservationState),
		meta:         make(map[string]showtimeMeta),
	}
}

// RegisterShowtime makes a catalog-supplied showtime holdable: seat state
// in the inventory, prices in the engine, metadata for events.  booked
// lists seats already sold in the ledger, used when rehydrating at startup.
func (m *Manager) RegisterShowtime(st *model.Showtime, booked []model.SeatID) error {
	if err := m.inv.Register(st, booked); err != nil {
		return err
	}
	if err := m.prices.Register(st); err != nil {
		return err
	}
	m.mu.Lock()
	m.meta[st.ID] = showtimeMeta{movieID: st.MovieID, theaterID: st.TheaterID}
	m.mu.Unlock()
	return nil
}

// CreateHold claims the seats for userID with a TTL-derived expiry.  On a
// conflict the returned *inventory.ConflictError names exactly the seats
// that were already taken so the caller can re-offer alternatives.
func (m *Manager) CreateHold(ctx context.Context, showtimeID, userID string, seatIDs []model.SeatID) (*model.Reservation, error) {
	if len(seatIDs) == 0 {
		return nil, ErrEmptySeatSet
	}
	seen := make(map[model.SeatID]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicateSeats
		}
		seen[id] = struct{}{}
	}

	total, err := m.prices.Total(showtimeID, seatIDs)
	if err != nil {
		if errors.Is(err, pricing.ErrUnknownShowtime) {
			return nil, ErrInvalidShowtime
		}
		return nil, err
	}

	now := time.Now().UTC()
	res := model.Reservation{
		ID:         uuid.NewString(),
		UserID:     userID,
		ShowtimeID: showtimeID,
		SeatIDs:    append([]model.SeatID(nil), seatIDs...),
		TotalUnits: total,
		Status:     model.ReservationPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.HoldTTL),
	}
	if err := m.inv.TryMarkHeld(showtimeID, res.SeatIDs, res.ID, res.ExpiresAt); err != nil {
		if errors.Is(err, inventory.ErrUnknownShowtime) {
			return nil, ErrInvalidShowtime
		}
		return nil, err
	}

	m.mu.Lock()
	m.reservations[res.ID] = &reservationState{res: res}
	m.mu.Unlock()

	m.invalidate(ctx, showtimeID)
	out := res
	out.SeatIDs = append([]model.SeatID(nil), res.SeatIDs...)
	return &out, nil
}

// Confirm converts a pending hold into a durable booking.  The charge to
// the payment collaborator runs while the reservation stays PENDING and
// its seats stay HELD, bounded by both the payment timeout and the hold
// expiry.  Retried confirms with the same idempotency key return the same
// booking and never append twice.
func (m *Manager) Confirm(ctx context.Context, reservationID, userID, idemKey, paymentRef string) (*model.Booking, error) {
	st := m.state(reservationID)
	if st == nil {
		return nil, ErrUnknownReservation
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.res.UserID != userID {
		return nil, ErrNotOwner
	}

	switch st.res.Status {
	case model.ReservationConfirmed:
		if idemKey != st.idemKey {
			return nil, ErrAlreadyConfirmed
		}
		if st.booking != nil {
			return copyBooking(st.booking), nil
		}
		// Earlier confirm paid and booked the seats but could not record
		// the booking; retry just the append.
		return m.recordBooking(ctx, st)
	case model.ReservationCancelled:
		return nil, ErrReservationCancelled
	case model.ReservationExpired:
		return nil, ErrReservationExpired
	}

	now := time.Now().UTC()
	if !st.res.ExpiresAt.After(now) {
		m.expireLocked(ctx, st)
		return nil, ErrReservationExpired
	}
	st.idemKey = idemKey

	// The charge may not outlive the hold: a slow provider cannot starve
	// other bookers beyond the TTL window.
	deadline := now.Add(m.cfg.PaymentTimeout)
	if st.res.ExpiresAt.Before(deadline) {
		deadline = st.res.ExpiresAt
	}
	chargeCtx, cancel := context.WithDeadline(ctx, deadline)
	err := m.payments.Charge(chargeCtx, st.res.TotalUnits, paymentRef)
	cancel()
	if err != nil {
		m.inv.Release(st.res.ShowtimeID, st.res.SeatIDs, st.res.ID)
		st.res.Status = model.ReservationCancelled
		st.doneAt = time.Now().UTC()
		m.invalidate(ctx, st.res.ShowtimeID)
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	// Payment succeeded; the hold may still have expired and been
	// reclaimed in the meantime.  MarkBooked decides under the showtime
	// mutex, so exactly one of booking and reclamation happens.
	if err := m.inv.MarkBooked(st.res.ShowtimeID, st.res.SeatIDs, st.res.ID); err != nil {
		if errors.Is(err, inventory.ErrStaleReservation) {
			log.Printf("reservation: payment captured for expired hold %s (ref=%s); refund required", st.res.ID, paymentRef)
			st.res.Status = model.ReservationExpired
			st.doneAt = time.Now().UTC()
			return nil, ErrReservationExpired
		}
		return nil, err
	}

	st.res.Status = model.ReservationConfirmed
	st.pending = &model.Booking{
		ID:            uuid.NewString(),
		ReservationID: st.res.ID,
		UserID:        st.res.UserID,
		ShowtimeID:    st.res.ShowtimeID,
		SeatIDs:       append([]model.SeatID(nil), st.res.SeatIDs...),
		TotalUnits:    st.res.TotalUnits,
		Reference:     ticketReference(),
		ConfirmedAt:   time.Now().UTC(),
	}
	return m.recordBooking(ctx, st)
}

// recordBooking appends st.pending to the ledger with internal retries.
// The caller must hold st.mu and have the seats BOOKED already.
func (m *Manager) recordBooking(ctx context.Context, st *reservationState) (*model.Booking, error) {
	stored, err := m.appendWithRetry(ctx, st.pending)
	if err != nil {
		log.Printf("reservation: LEDGER APPEND FAILED for reservation %s (booking %s, seats %v): %v",
			st.res.ID, st.pending.ID, st.pending.SeatIDs, err)
		m.invalidate(ctx, st.res.ShowtimeID)
		return nil, ErrStorageFailure
	}
	st.booking = stored
	st.pending = nil
	st.doneAt = time.Now().UTC()

	m.invalidate(ctx, st.res.ShowtimeID)
	m.publish(ctx, stored)
	return copyBooking(stored), nil
}

func (m *Manager) appendWithRetry(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	backoff := m.cfg.AppendBackoff
	var lastErr error
	for attempt := 0; attempt <= m.cfg.AppendRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		stored, err := m.ledger.Append(ctx, b)
		if err == nil {
			return stored, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Cancel releases a pending hold early.  Cancelling twice is a no-op;
// cancelling a confirmed or expired reservation reports why it is illegal.
func (m *Manager) Cancel(ctx context.Context, reservationID, userID string) error {
	st := m.state(reservationID)
	if st == nil {
		return ErrUnknownReservation
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.res.UserID != userID {
		return ErrNotOwner
	}
	switch st.res.Status {
	case model.ReservationCancelled:
		return nil
	case model.ReservationConfirmed:
		return ErrAlreadyConfirmed
	case model.ReservationExpired:
		return ErrReservationExpired
	}
	if !st.res.ExpiresAt.After(time.Now().UTC()) {
		m.expireLocked(ctx, st)
		return ErrReservationExpired
	}
	m.inv.Release(st.res.ShowtimeID, st.res.SeatIDs, st.res.ID)
	st.res.Status = model.ReservationCancelled
	st.doneAt = time.Now().UTC()
	m.invalidate(ctx, st.res.ShowtimeID)
	return nil
}

// Reservation returns a copy of the caller's reservation.
func (m *Manager) Reservation(reservationID, userID string) (*model.Reservation, error) {
	st := m.state(reservationID)
	if st == nil {
		return nil, ErrUnknownReservation
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.res.UserID != userID {
		return nil, ErrNotOwner
	}
	out := st.res
	out.SeatIDs = append([]model.SeatID(nil), st.res.SeatIDs...)
	return &out, nil
}

// SweepExpiredHolds releases the seats of every pending reservation whose
// TTL has elapsed and returns how many it reclaimed.  Safe to run
// concurrently with Confirm: both take the reservation mutex, and the
// inventory arbitrates the final seat state.
//
// The sweep also evicts reservations that have been terminal for longer
// than the retention window, so the in-memory table stays bounded on a
// long-running server.  A confirmed reservation whose booking is still
// pending a ledger append is never evicted; it carries the only copy of
// the record until the append succeeds.  Confirm retries arriving after
// eviction are covered by the ledger's idempotent append.
func (m *Manager) SweepExpiredHolds(ctx context.Context) int {
	m.mu.Lock()
	states := make(map[string]*reservationState, len(m.reservations))
	for id, st := range m.reservations {
		states[id] = st
	}
	m.mu.Unlock()

	now := time.Now().UTC()
	reclaimed := 0
	var evict []string
	for id, st := range states {
		st.mu.Lock()
		if st.res.Status == model.ReservationPending && !st.res.ExpiresAt.After(now) {
			m.expireLocked(ctx, st)
			reclaimed++
		}
		if st.res.Status != model.ReservationPending && !st.doneAt.IsZero() &&
			now.Sub(st.doneAt) >= m.cfg.Retention {
			evict = append(evict, id)
		}
		st.mu.Unlock()
	}

	if len(evict) > 0 {
		m.mu.Lock()
		for _, id := range evict {
			delete(m.reservations, id)
		}
		m.mu.Unlock()
	}
	return reclaimed
}

// RunReaper sweeps expired holds until the context is cancelled.
func (m *Manager) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReaperInterval)
	defer ticker.Stop()
	log.Printf("reservation: reaper started (interval=%s, ttl=%s)", m.cfg.ReaperInterval, m.cfg.HoldTTL)
	for {
		select {
		case <-ctx.Done():
			log.Printf("reservation: reaper stopped")
			return
		case <-ticker.C:
			if n := m.SweepExpiredHolds(ctx); n > 0 {
				log.Printf("reservation: reaper reclaimed %d expired hold(s)", n)
			}
		}
	}
}

// expireLocked releases seats and marks the reservation EXPIRED.  The
// caller must hold st.mu.
func (m *Manager) expireLocked(ctx context.Context, st *reservationState) {
	m.inv.Release(st.res.ShowtimeID, st.res.SeatIDs, st.res.ID)
	st.res.Status = model.ReservationExpired
	st.doneAt = time.Now().UTC()
	m.invalidate(ctx, st.res.ShowtimeID)
}

func (m *Manager) state(reservationID string) *reservationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[reservationID]
}

func (m *Manager) invalidate(ctx context.Context, showtimeID string) {
	if m.snapshots != nil {
		m.snapshots.Invalidate(ctx, showtimeID)
	}
}

func (m *Manager) publish(ctx context.Context, b *model.Booking) {
	if m.events == nil {
		return
	}
	m.mu.Lock()
	meta := m.meta[b.ShowtimeID]
	m.mu.Unlock()

	seats := make([]string, 0, len(b.SeatIDs))
	for _, s := range b.SeatIDs {
		seats = append(seats, string(s))
	}
	ev := queue.BookingConfirmedEvent{
		BookingID:     b.ID,
		ReservationID: b.ReservationID,
		UserID:        b.UserID,
		ShowtimeID:    b.ShowtimeID,
		MovieID:       meta.movieID,
		TheaterID:     meta.theaterID,
		Seats:         seats,
		TotalUnits:    b.TotalUnits,
		Reference:     b.Reference,
		ConfirmedAt:   b.ConfirmedAt.Format(time.RFC3339),
	}
	if err := m.events.BookingConfirmed(ctx, ev); err != nil {
		log.Printf("reservation: publish booking.confirmed failed: %v", err)
	}
}

func copyBooking(b *model.Booking) *model.Booking {
	out := *b
	out.SeatIDs = append([]model.SeatID(nil), b.SeatIDs...)
	return &out
}

// ticketReference builds the short code printed on the ticket, e.g.
// "TKT-9F2C41AB".
func ticketReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TKT-" + raw[:8]
}
