// Package inventory owns the authoritative seat state for every registered
// showtime.  All mutations for a showtime run under that showtime's mutex,
// so concurrent hold requests can never both observe overlapping seats as
// available.  Conflicts are resolved first-committer-wins; the loser gets
// back the exact set of contended seats, never a partial hold.
package inventory

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/showtix/booking/internal/model"
)

var (
	// ErrUnknownShowtime is returned when an operation references a
	// showtime that was never registered.
	ErrUnknownShowtime = errors.New("inventory: unknown showtime")

	// ErrShowtimeExists is returned when registering a showtime ID twice.
	ErrShowtimeExists = errors.New("inventory: showtime already registered")

	// ErrStaleReservation is returned by MarkBooked when at least one seat
	// is no longer held by the given reservation, e.g. because the hold
	// expired and was reclaimed by another request.
	ErrStaleReservation = errors.New("inventory: seats no longer held by reservation")
)

// UnknownSeatError reports seat IDs that are not part of a showtime's
// declared sections.  This is a caller error and is never retried.
type UnknownSeatError struct {
	ShowtimeID string
	Seats      []model.SeatID
}

func (e *UnknownSeatError) Error() string {
	return fmt.Sprintf("inventory: showtime %s has no seats %v", e.ShowtimeID, e.Seats)
}

// ConflictError reports the subset of requested seats that were already
// HELD or BOOKED when a hold was attempted.  The caller should re-offer
// alternatives for exactly these seats.
type ConflictError struct {
	ShowtimeID string
	Seats      []model.SeatID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("inventory: seats unavailable for showtime %s: %v", e.ShowtimeID, e.Seats)
}

// seatState is the internal per-seat record.  heldBy and holdExpiresAt are
// meaningful only while status is HELD.
type seatState struct {
	section       string
	status        model.SeatStatus
	heldBy        string
	holdExpiresAt time.Time
}

// seatTable holds every seat of one showtime behind a single mutex.  The
// mutex is the atomicity unit required for all-or-nothing holds and for the
// confirm-versus-reclaim race.
type seatTable struct {
	mu    sync.Mutex
	seats map[model.SeatID]*seatState
	order []model.SeatID // declaration order, for deterministic snapshots
}

// Inventory maps showtime IDs to their seat tables.  The outer lock only
// guards the map itself; per-seat mutations take the showtime's own lock so
// unrelated showtimes never contend.
type Inventory struct {
	mu    sync.RWMutex
	shows map[string]*seatTable
}

// New returns an empty Inventory.
func New() *Inventory {
	return &Inventory{shows: make(map[string]*seatTable)}
}

// Register initialises seat state for a showtime delivered by the catalog
// source.  Seats listed as pre-booked in the layout, plus any IDs in the
// booked argument (used when rehydrating from the ledger at startup), start
// in BOOKED.  Row labels must be unique across sections so that seat IDs
// are unambiguous; violations are rejected.
func (inv *Inventory) Register(st *model.Showtime, booked []model.SeatID) error {
	table := &seatTable{seats: make(map[model.SeatID]*seatState)}
	for _, sec := range st.Sections {
		for _, id := range sec.Seats() {
			if _, dup := table.seats[id]; dup {
				return fmt.Errorf("inventory: duplicate seat %s in showtime %s", id, st.ID)
			}
			table.seats[id] = &seatState{section: sec.Name, status: model.SeatAvailable}
			table.order = append(table.order, id)
		}
		for _, id := range sec.PreBooked() {
			s, ok := table.seats[id]
			if !ok {
				return fmt.Errorf("inventory: pre-booked seat %s not in layout of showtime %s", id, st.ID)
			}
			s.status = model.SeatBooked
		}
	}
	for _, id := range booked {
		s, ok := table.seats[id]
		if !ok {
			return fmt.Errorf("inventory: booked seat %s not in layout of showtime %s", id, st.ID)
		}
		s.status = model.SeatBooked
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, exists := inv.shows[st.ID]; exists {
		return ErrShowtimeExists
	}
	inv.shows[st.ID] = table
	return nil
}

// table looks up the seat table for a showtime.
func (inv *Inventory) table(showtimeID string) (*seatTable, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	t, ok := inv.shows[showtimeID]
	if !ok {
		return nil, ErrUnknownShowtime
	}
	return t, nil
}

// SeatMap returns a point-in-time snapshot of every seat for a showtime in
// declaration order.  Expired holds are reported as AVAILABLE even before
// they have been reclaimed.  The snapshot is for display only; hold success
// is decided solely by TryMarkHeld.
func (inv *Inventory) SeatMap(showtimeID string) ([]model.SeatState, error) {
	t, err := inv.table(showtimeID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.SeatState, 0, len(t.order))
	for _, id := range t.order {
		s := t.seats[id]
		view := model.SeatState{ID: id, Section: s.section, Status: s.status}
		if s.status == model.SeatHeld {
			if s.holdExpiresAt.After(now) {
				exp := s.holdExpiresAt
				view.HeldBy = s.heldBy
				view.HoldExpiresAt = &exp
			} else {
				view.Status = model.SeatAvailable
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// TryMarkHeld atomically transitions exactly the requested seats from
// AVAILABLE to HELD on behalf of a reservation, or fails without touching
// anything.  A seat whose hold has expired counts as AVAILABLE and is
// reclaimed in place.  On failure the error is an *UnknownSeatError when a
// seat does not exist, or a *ConflictError naming the already-taken seats.
func (inv *Inventory) TryMarkHeld(showtimeID string, seatIDs []model.SeatID, reservationID string, expiresAt time.Time) error {
	t, err := inv.table(showtimeID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()

	var unknown, conflict []model.SeatID
	for _, id := range seatIDs {
		s, ok := t.seats[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		if !available(s, now) {
			conflict = append(conflict, id)
		}
	}
	if len(unknown) > 0 {
		sortSeats(unknown)
		return &UnknownSeatError{ShowtimeID: showtimeID, Seats: unknown}
	}
	if len(conflict) > 0 {
		sortSeats(conflict)
		return &ConflictError{ShowtimeID: showtimeID, Seats: conflict}
	}
	for _, id := range seatIDs {
		s := t.seats[id]
		s.status = model.SeatHeld
		s.heldBy = reservationID
		s.holdExpiresAt = expiresAt
	}
	return nil
}

// MarkBooked transitions HELD→BOOKED for seats currently held, unexpired,
// by the given reservation.  If any seat's hold does not match (already
// expired, reclaimed, or held by someone else) nothing changes and
// ErrStaleReservation is returned.  Exactly one of MarkBooked and an
// expiry reclaim can succeed for a reservation because both run under the
// showtime mutex.
func (inv *Inventory) MarkBooked(showtimeID string, seatIDs []model.SeatID, reservationID string) error {
	t, err := inv.table(showtimeID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range seatIDs {
		s, ok := t.seats[id]
		if !ok || s.status != model.SeatHeld || s.heldBy != reservationID || !s.holdExpiresAt.After(now) {
			return ErrStaleReservation
		}
	}
	for _, id := range seatIDs {
		s := t.seats[id]
		s.status = model.SeatBooked
		s.heldBy = ""
		s.holdExpiresAt = time.Time{}
	}
	return nil
}

// Release transitions HELD→AVAILABLE for seats held by the given
// reservation.  Seats that are already AVAILABLE, BOOKED, or held by a
// different reservation are left untouched, making Release safe to call
// more than once for the same hold.
func (inv *Inventory) Release(showtimeID string, seatIDs []model.SeatID, reservationID string) error {
	t, err := inv.table(showtimeID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range seatIDs {
		s, ok := t.seats[id]
		if !ok {
			continue
		}
		if s.status == model.SeatHeld && s.heldBy == reservationID {
			s.status = model.SeatAvailable
			s.heldBy = ""
			s.holdExpiresAt = time.Time{}
		}
	}
	return nil
}

// ShowtimeIDs returns the IDs of all registered showtimes.
func (inv *Inventory) ShowtimeIDs() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	ids := make([]string, 0, len(inv.shows))
	for id := range inv.shows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// available reports whether a seat can be handed to a new hold at the given
// instant.  An expired hold is equivalent to AVAILABLE.
func available(s *seatState, now time.Time) bool {
	switch s.status {
	case model.SeatAvailable:
		return true
	case model.SeatHeld:
		return !s.holdExpiresAt.After(now)
	default:
		return false
	}
}

func sortSeats(ids []model.SeatID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
