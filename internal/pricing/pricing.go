// Package pricing resolves seats to unit prices for registered showtimes.
// Prices are fixed when a showtime is created and expressed in integer
// minor currency units, so totals over any seat set are exact sums with no
// rounding involved.
package pricing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/showtix/booking/internal/model"
)

var (
	// ErrUnknownShowtime is returned for showtimes that were never registered.
	ErrUnknownShowtime = errors.New("pricing: unknown showtime")
)

// UnknownSeatError reports a seat ID that is not part of the showtime's
// declared sections.
type UnknownSeatError struct {
	ShowtimeID string
	Seat       model.SeatID
}

func (e *UnknownSeatError) Error() string {
	return fmt.Sprintf("pricing: seat %s is not part of showtime %s", e.Seat, e.ShowtimeID)
}

// book is the immutable price table of one showtime.
type book struct {
	showtimeID string
	prices     map[model.SeatID]int64
}

// Engine maps showtime IDs to their price books.  All lookups are pure:
// the engine has no side effects beyond registration.
type Engine struct {
	mu    sync.RWMutex
	books map[string]*book
}

// NewEngine returns an empty pricing engine.
func NewEngine() *Engine {
	return &Engine{books: make(map[string]*book)}
}

// Register builds the price book for a showtime from its sections.  Seat
// IDs must be unique across sections; a duplicate rejects the showtime.
// Registering the same showtime ID twice replaces the previous book, which
// only happens during startup rehydration.
func (e *Engine) Register(st *model.Showtime) error {
	b := &book{showtimeID: st.ID, prices: make(map[model.SeatID]int64)}
	for _, sec := range st.Sections {
		if sec.PriceUnits < 0 {
			return fmt.Errorf("pricing: negative price for section %s of showtime %s", sec.Name, st.ID)
		}
		for _, id := range sec.Seats() {
			if _, dup := b.prices[id]; dup {
				return fmt.Errorf("pricing: duplicate seat %s in showtime %s", id, st.ID)
			}
			b.prices[id] = sec.PriceUnits
		}
	}
	e.mu.Lock()
	e.books[st.ID] = b
	e.mu.Unlock()
	return nil
}

func (e *Engine) book(showtimeID string) (*book, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.books[showtimeID]
	if !ok {
		return nil, ErrUnknownShowtime
	}
	return b, nil
}

// UnitPrice returns the price of a single seat in minor currency units.
func (e *Engine) UnitPrice(showtimeID string, seat model.SeatID) (int64, error) {
	b, err := e.book(showtimeID)
	if err != nil {
		return 0, err
	}
	p, ok := b.prices[seat]
	if !ok {
		return 0, &UnknownSeatError{ShowtimeID: showtimeID, Seat: seat}
	}
	return p, nil
}

// Total returns the integer sum of the unit prices of the given seats.  Any
// seat outside the showtime's sections fails the whole quote.
func (e *Engine) Total(showtimeID string, seatIDs []model.SeatID) (int64, error) {
	b, err := e.book(showtimeID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, id := range seatIDs {
		p, ok := b.prices[id]
		if !ok {
			return 0, &UnknownSeatError{ShowtimeID: showtimeID, Seat: id}
		}
		total += p
	}
	return total, nil
}
