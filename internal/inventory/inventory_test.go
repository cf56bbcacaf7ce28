package inventory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showtix/booking/internal/model"
)

func premiereShowtime() *model.Showtime {
	return &model.Showtime{
		ID:        "S1",
		MovieID:   "mv-42",
		TheaterID: "th-7",
		StartsAt:  time.Now().UTC().Add(24 * time.Hour),
		Sections: []model.Section{
			{
				Name:       "Premium",
				PriceUnits: 350,
				Rows: []model.Row{
					{Label: "A", Seats: 8, Booked: []uint32{1, 2}},
				},
			},
			{
				Name:       "Normal",
				PriceUnits: 150,
				Rows: []model.Row{
					{Label: "B", Seats: 4},
				},
			},
		},
	}
}

func seats(ids ...string) []model.SeatID {
	out := make([]model.SeatID, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.SeatID(id))
	}
	return out
}

func TestRegisterAndSeatMap(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))

	states, err := inv.SeatMap("S1")
	require.NoError(t, err)
	require.Len(t, states, 12)

	byID := make(map[model.SeatID]model.SeatState)
	for _, s := range states {
		byID[s.ID] = s
	}
	assert.Equal(t, model.SeatBooked, byID["A1"].Status)
	assert.Equal(t, model.SeatBooked, byID["A2"].Status)
	assert.Equal(t, model.SeatAvailable, byID["A3"].Status)
	assert.Equal(t, "Premium", byID["A3"].Section)
	assert.Equal(t, "Normal", byID["B1"].Section)
}

func TestRegisterRejectsDuplicateShowtime(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))
	assert.ErrorIs(t, inv.Register(premiereShowtime(), nil), ErrShowtimeExists)
}

func TestRegisterRejectsDuplicateRowLabels(t *testing.T) {
	st := premiereShowtime()
	st.Sections[1].Rows[0].Label = "A" // collides with Premium row A
	assert.Error(t, New().Register(st, nil))
}

func TestRegisterRehydratesBookedSeats(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), seats("B1", "B2")))

	err := inv.TryMarkHeld("S1", seats("B1"), "r1", time.Now().UTC().Add(time.Minute))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, seats("B1"), conflict.Seats)
}

func TestHoldIsAllOrNothing(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))
	expires := time.Now().UTC().Add(time.Minute)

	require.NoError(t, inv.TryMarkHeld("S1", seats("A3", "A4"), "r1", expires))

	// A3 is taken, so holding [A3 A5] must fail and must not touch A5.
	err := inv.TryMarkHeld("S1", seats("A3", "A5"), "r2", expires)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, seats("A3"), conflict.Seats)

	require.NoError(t, inv.TryMarkHeld("S1", seats("A5"), "r2", expires))
}

func TestHoldConflictListsOnlyContendedSeats(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))
	expires := time.Now().UTC().Add(time.Minute)

	require.NoError(t, inv.TryMarkHeld("S1", seats("A3", "A4", "A5"), "r1", expires))

	err := inv.TryMarkHeld("S1", seats("A4", "A5", "A6", "B1"), "r2", expires)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, seats("A4", "A5"), conflict.Seats)
}

func TestHoldUnknownSeat(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))

	err := inv.TryMarkHeld("S1", seats("Z9"), "r1", time.Now().UTC().Add(time.Minute))
	var unknown *UnknownSeatError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, seats("Z9"), unknown.Seats)

	assert.ErrorIs(t, inv.TryMarkHeld("nope", seats("A3"), "r1", time.Now()), ErrUnknownShowtime)
}

func TestConcurrentDisjointHoldsBothSucceed(t *testing.T) {
	for i := 0; i < 50; i++ {
		inv := New()
		require.NoError(t, inv.Register(premiereShowtime(), nil))
		expires := time.Now().UTC().Add(time.Minute)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); errs[0] = inv.TryMarkHeld("S1", seats("A3", "A4"), "r1", expires) }()
		go func() { defer wg.Done(); errs[1] = inv.TryMarkHeld("S1", seats("A5", "A6"), "r2", expires) }()
		wg.Wait()

		assert.NoError(t, errs[0])
		assert.NoError(t, errs[1])
	}
}

func TestConcurrentOverlappingHoldsAtMostOneWins(t *testing.T) {
	for i := 0; i < 50; i++ {
		inv := New()
		require.NoError(t, inv.Register(premiereShowtime(), nil))
		expires := time.Now().UTC().Add(time.Minute)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); errs[0] = inv.TryMarkHeld("S1", seats("A3", "A4"), "r1", expires) }()
		go func() { defer wg.Done(); errs[1] = inv.TryMarkHeld("S1", seats("A4", "A5"), "r2", expires) }()
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, seats("A4"), conflict.Seats)
		}
		assert.Equal(t, 1, winners)
	}
}

func TestExpiredHoldIsReclaimable(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))

	past := time.Now().UTC().Add(-time.Second)
	require.NoError(t, inv.TryMarkHeld("S1", seats("B1"), "r1", past))

	// An expired hold reads as AVAILABLE and can be taken by someone else.
	states, err := inv.SeatMap("S1")
	require.NoError(t, err)
	for _, s := range states {
		if s.ID == "B1" {
			assert.Equal(t, model.SeatAvailable, s.Status)
		}
	}
	require.NoError(t, inv.TryMarkHeld("S1", seats("B1"), "r3", time.Now().UTC().Add(time.Minute)))
}

func TestMarkBooked(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))
	expires := time.Now().UTC().Add(time.Minute)

	require.NoError(t, inv.TryMarkHeld("S1", seats("A3", "A4"), "r1", expires))
	require.NoError(t, inv.MarkBooked("S1", seats("A3", "A4"), "r1"))

	// BOOKED is terminal: no further hold, booking or release applies.
	err := inv.TryMarkHeld("S1", seats("A3"), "r2", expires)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.NoError(t, inv.Release("S1", seats("A3", "A4"), "r1"))
	states, _ := inv.SeatMap("S1")
	for _, s := range states {
		if s.ID == "A3" || s.ID == "A4" {
			assert.Equal(t, model.SeatBooked, s.Status)
		}
	}
}

func TestMarkBookedStaleAfterReclaim(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))

	past := time.Now().UTC().Add(-time.Second)
	require.NoError(t, inv.TryMarkHeld("S1", seats("A3"), "r1", past))
	require.NoError(t, inv.TryMarkHeld("S1", seats("A3"), "r2", time.Now().UTC().Add(time.Minute)))

	assert.ErrorIs(t, inv.MarkBooked("S1", seats("A3"), "r1"), ErrStaleReservation)
	require.NoError(t, inv.MarkBooked("S1", seats("A3"), "r2"))
}

func TestMarkBookedExpiredHoldIsStale(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))

	past := time.Now().UTC().Add(-time.Second)
	require.NoError(t, inv.TryMarkHeld("S1", seats("A3"), "r1", past))
	assert.ErrorIs(t, inv.MarkBooked("S1", seats("A3"), "r1"), ErrStaleReservation)
}

func TestReleaseIsIdempotent(t *testing.T) {
	inv := New()
	require.NoError(t, inv.Register(premiereShowtime(), nil))
	expires := time.Now().UTC().Add(time.Minute)

	require.NoError(t, inv.TryMarkHeld("S1", seats("A3", "A4"), "r1", expires))
	require.NoError(t, inv.Release("S1", seats("A3", "A4"), "r1"))
	require.NoError(t, inv.Release("S1", seats("A3", "A4"), "r1"))

	require.NoError(t, inv.TryMarkHeld("S1", seats("A3", "A4"), "r2", expires))
	// A release by the wrong reservation is a no-op.
	require.NoError(t, inv.Release("S1", seats("A3"), "r1"))
	err := inv.TryMarkHeld("S1", seats("A3"), "r3", expires)
	assert.Error(t, err)
}

func TestUnknownShowtimeErrors(t *testing.T) {
	inv := New()
	_, err := inv.SeatMap("ghost")
	assert.ErrorIs(t, err, ErrUnknownShowtime)
	assert.ErrorIs(t, inv.MarkBooked("ghost", seats("A1"), "r1"), ErrUnknownShowtime)
	assert.ErrorIs(t, inv.Release("ghost", seats("A1"), "r1"), ErrUnknownShowtime)
	assert.True(t, errors.Is(inv.TryMarkHeld("ghost", seats("A1"), "r1", time.Now()), ErrUnknownShowtime))
}
