package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showtix/booking/internal/inventory"
	"github.com/showtix/booking/internal/model"
	"github.com/showtix/booking/internal/payment"
	"github.com/showtix/booking/internal/pricing"
	"github.com/showtix/booking/internal/queue"
)

// fakeLedger is an in-memory Store: idempotent on reservation ID and able
// to fail a configurable number of times.
type fakeLedger struct {
	mu        sync.Mutex
	byRes     map[string]*model.Booking
	appends   int
	failTimes int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{byRes: make(map[string]*model.Booking)}
}

func (f *fakeLedger) Append(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimes > 0 {
		f.failTimes--
		return nil, errors.New("ledger unavailable")
	}
	f.appends++
	if existing, ok := f.byRes[b.ReservationID]; ok {
		return existing, nil
	}
	stored := *b
	f.byRes[b.ReservationID] = &stored
	return &stored, nil
}

func (f *fakeLedger) records() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byRes)
}

// fakePayments returns a fixed outcome after an optional delay.
type fakePayments struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	calls int
}

func (f *fakePayments) Charge(ctx context.Context, amountUnits int64, paymentRef string) error {
	f.mu.Lock()
	f.calls++
	err, delay := f.err, f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

type fakeEvents struct {
	mu     sync.Mutex
	events []queue.BookingConfirmedEvent
}

func (f *fakeEvents) BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fixture struct {
	mgr      *Manager
	inv      *inventory.Inventory
	ledger   *fakeLedger
	payments *fakePayments
	events   *fakeEvents
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.AppendBackoff == 0 {
		cfg.AppendBackoff = time.Millisecond
	}
	f := &fixture{
		inv:      inventory.New(),
		ledger:   newFakeLedger(),
		payments: &fakePayments{},
		events:   &fakeEvents{},
	}
	f.mgr = NewManager(f.inv, pricing.NewEngine(), f.ledger, f.payments, f.events, nil, cfg)

	st := &model.Showtime{
		ID:        "S1",
		MovieID:   "mv-42",
		TheaterID: "th-7",
		StartsAt:  time.Now().UTC().Add(24 * time.Hour),
		Sections: []model.Section{
			{Name: "Premium", PriceUnits: 350, Rows: []model.Row{{Label: "A", Seats: 8, Booked: []uint32{1, 2}}}},
			{Name: "Normal", PriceUnits: 150, Rows: []model.Row{{Label: "B", Seats: 4}}},
		},
	}
	require.NoError(t, f.mgr.RegisterShowtime(st, nil))
	return f
}

func seatSet(ids ...string) []model.SeatID {
	out := make([]model.SeatID, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.SeatID(id))
	}
	return out
}

// The end-to-end scenario: U1 holds and confirms [A3 A4] while U2 loses
// the race on A3 but can still take A5 afterwards.
func TestHoldConfirmScenario(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3", "A4"))
	require.NoError(t, err)
	assert.Equal(t, int64(700), res.TotalUnits)
	assert.Equal(t, model.ReservationPending, res.Status)

	_, err = f.mgr.CreateHold(ctx, "S1", "U2", seatSet("A3", "A5"))
	var conflict *inventory.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, seatSet("A3"), conflict.Seats)

	booking, err := f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-ref-1")
	require.NoError(t, err)
	assert.Equal(t, seatSet("A3", "A4"), booking.SeatIDs)
	assert.Equal(t, int64(700), booking.TotalUnits)
	assert.Equal(t, 1, f.ledger.records())

	// A5 was never part of the failed hold and is still free for U2.
	res2, err := f.mgr.CreateHold(ctx, "S1", "U2", seatSet("A5"))
	require.NoError(t, err)
	assert.Equal(t, int64(350), res2.TotalUnits)

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.Len(t, f.events.events, 1)
	assert.Equal(t, booking.ID, f.events.events[0].BookingID)
	assert.Equal(t, "mv-42", f.events.events[0].MovieID)
}

func TestConfirmIsIdempotentWithSameKey(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3"))
	require.NoError(t, err)

	first, err := f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	require.NoError(t, err)
	second, err := f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.ledger.records())
	assert.Equal(t, 1, f.payments.calls)
}

func TestConfirmWithDifferentKeyIsRejected(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3"))
	require.NoError(t, err)
	_, err = f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	require.NoError(t, err)

	_, err = f.mgr.Confirm(ctx, res.ID, "U1", "key-2", "pay-1")
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.Equal(t, 1, f.ledger.records())
}

func TestConfirmAfterExpiryNeverBooks(t *testing.T) {
	f := newFixture(t, Config{HoldTTL: 20 * time.Millisecond})
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("B1"))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	_, err = f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	assert.ErrorIs(t, err, ErrReservationExpired)
	assert.Equal(t, 0, f.ledger.records())
	assert.Equal(t, 0, f.payments.calls)

	// The expired hold's seats are free again.
	_, err = f.mgr.CreateHold(ctx, "S1", "U3", seatSet("B1"))
	assert.NoError(t, err)
}

func TestReaperReclaimsExpiredHolds(t *testing.T) {
	f := newFixture(t, Config{HoldTTL: 20 * time.Millisecond})
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("B1", "B2"))
	require.NoError(t, err)
	keep, err := f.mgr.CreateHold(ctx, "S1", "U2", seatSet("B3"))
	require.NoError(t, err)
	_ = keep

	time.Sleep(40 * time.Millisecond)
	// B3's hold is also past its TTL here, so the sweep reclaims both.
	assert.Equal(t, 2, f.mgr.SweepExpiredHolds(ctx))
	assert.Equal(t, 0, f.mgr.SweepExpiredHolds(ctx))

	got, err := f.mgr.Reservation(res.ID, "U1")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationExpired, got.Status)

	_, err = f.mgr.CreateHold(ctx, "S1", "U3", seatSet("B1", "B2", "B3"))
	assert.NoError(t, err)
}

func TestPaymentDeclinedReleasesSeats(t *testing.T) {
	f := newFixture(t, Config{})
	f.payments.err = payment.ErrDeclined
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3", "A4"))
	require.NoError(t, err)

	_, err = f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, 0, f.ledger.records())

	// Seats are released exactly once; a fresh hold works.
	_, err = f.mgr.CreateHold(ctx, "S1", "U2", seatSet("A3", "A4"))
	assert.NoError(t, err)

	// The failed reservation is terminal.
	_, err = f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	assert.ErrorIs(t, err, ErrReservationCancelled)
}

func TestPaymentTimeoutIsFailureNotSuccess(t *testing.T) {
	f := newFixture(t, Config{})
	f.payments.err = payment.ErrTimeout

	res, err := f.mgr.CreateHold(context.Background(), "S1", "U1", seatSet("A3"))
	require.NoError(t, err)

	_, err = f.mgr.Confirm(context.Background(), res.ID, "U1", "key-1", "pay-1")
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, 0, f.ledger.records())
}

func TestStorageFailureKeepsSeatsBookedAndRetries(t *testing.T) {
	f := newFixture(t, Config{AppendRetries: 1, AppendBackoff: time.Millisecond})
	f.ledger.failTimes = 10 // exhaust the internal retries of the first confirm
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3"))
	require.NoError(t, err)

	_, err = f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	assert.ErrorIs(t, err, ErrStorageFailure)

	// The seat is BOOKED (payment succeeded) even though the ledger is
	// behind; nobody else can take it.
	_, err = f.mgr.CreateHold(ctx, "S1", "U2", seatSet("A3"))
	var conflict *inventory.ConflictError
	require.ErrorAs(t, err, &conflict)

	// Once storage recovers, the retried confirm with the same key
	// records the booking exactly once.
	f.ledger.mu.Lock()
	f.ledger.failTimes = 0
	f.ledger.mu.Unlock()
	booking, err := f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, seatSet("A3"), booking.SeatIDs)
	assert.Equal(t, 1, f.ledger.records())
	assert.Equal(t, 1, f.payments.calls)
}

func TestCancelReleasesHold(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3", "A4"))
	require.NoError(t, err)
	require.NoError(t, f.mgr.Cancel(ctx, res.ID, "U1"))
	// Cancelling again is a no-op.
	require.NoError(t, f.mgr.Cancel(ctx, res.ID, "U1"))

	_, err = f.mgr.CreateHold(ctx, "S1", "U2", seatSet("A3", "A4"))
	assert.NoError(t, err)

	_, err = f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	assert.ErrorIs(t, err, ErrReservationCancelled)
}

func TestCancelRequiresOwner(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3"))
	require.NoError(t, err)
	assert.ErrorIs(t, f.mgr.Cancel(ctx, res.ID, "U2"), ErrNotOwner)
	_, err = f.mgr.Confirm(ctx, res.ID, "U2", "key", "pay")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestCreateHoldValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.mgr.CreateHold(ctx, "S1", "U1", nil)
	assert.ErrorIs(t, err, ErrEmptySeatSet)

	_, err = f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3", "A3"))
	assert.ErrorIs(t, err, ErrDuplicateSeats)

	_, err = f.mgr.CreateHold(ctx, "ghost", "U1", seatSet("A3"))
	assert.ErrorIs(t, err, ErrInvalidShowtime)

	var unknown *pricing.UnknownSeatError
	_, err = f.mgr.CreateHold(ctx, "S1", "U1", seatSet("Z9"))
	assert.ErrorAs(t, err, &unknown)
}

func TestConfirmRacingExpiryBooksAtMostOnce(t *testing.T) {
	f := newFixture(t, Config{HoldTTL: 100 * time.Millisecond})
	// Payment completes only after the hold has expired and the seat has
	// been re-held by someone else.
	f.payments.delay = 250 * time.Millisecond
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
		done <- err
	}()

	// Past the TTL the seat is lazily reclaimable by another hold even
	// though the original confirm is still waiting on its payment.
	time.Sleep(150 * time.Millisecond)
	_, err = f.mgr.CreateHold(ctx, "S1", "U3", seatSet("A3"))
	require.NoError(t, err)

	assert.ErrorIs(t, <-done, ErrReservationExpired)
	assert.Equal(t, 0, f.ledger.records())
}

func TestSweepEvictsFinishedReservations(t *testing.T) {
	f := newFixture(t, Config{Retention: 20 * time.Millisecond})
	ctx := context.Background()

	cancelled, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3"))
	require.NoError(t, err)
	require.NoError(t, f.mgr.Cancel(ctx, cancelled.ID, "U1"))

	confirmed, err := f.mgr.CreateHold(ctx, "S1", "U2", seatSet("A4"))
	require.NoError(t, err)
	_, err = f.mgr.Confirm(ctx, confirmed.ID, "U2", "key-1", "pay-1")
	require.NoError(t, err)

	open, err := f.mgr.CreateHold(ctx, "S1", "U3", seatSet("A5"))
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	f.mgr.SweepExpiredHolds(ctx)

	// Terminal reservations past the retention window are gone.
	_, err = f.mgr.Reservation(cancelled.ID, "U1")
	assert.ErrorIs(t, err, ErrUnknownReservation)
	_, err = f.mgr.Reservation(confirmed.ID, "U2")
	assert.ErrorIs(t, err, ErrUnknownReservation)

	// The still-pending hold survives the sweep untouched.
	got, err := f.mgr.Reservation(open.ID, "U3")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, got.Status)
}

func TestSweepRetainsUnrecordedBooking(t *testing.T) {
	f := newFixture(t, Config{Retention: 10 * time.Millisecond, AppendRetries: 1})
	f.ledger.failTimes = 10
	ctx := context.Background()

	res, err := f.mgr.CreateHold(ctx, "S1", "U1", seatSet("A3"))
	require.NoError(t, err)
	_, err = f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	require.ErrorIs(t, err, ErrStorageFailure)

	// The booking is not durable yet, so no amount of sweeping may evict
	// the reservation that carries it.
	time.Sleep(30 * time.Millisecond)
	f.mgr.SweepExpiredHolds(ctx)

	f.ledger.mu.Lock()
	f.ledger.failTimes = 0
	f.ledger.mu.Unlock()
	booking, err := f.mgr.Confirm(ctx, res.ID, "U1", "key-1", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, seatSet("A3"), booking.SeatIDs)
	assert.Equal(t, 1, f.ledger.records())
}

func TestUnknownReservation(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.mgr.Confirm(context.Background(), "ghost", "U1", "k", "p")
	assert.ErrorIs(t, err, ErrUnknownReservation)
	assert.ErrorIs(t, f.mgr.Cancel(context.Background(), "ghost", "U1"), ErrUnknownReservation)
	_, err = f.mgr.Reservation("ghost", "U1")
	assert.ErrorIs(t, err, ErrUnknownReservation)
}
