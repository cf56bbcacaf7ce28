package model

import (
	"fmt"
	"time"
)

// SeatID identifies a seat within a showtime, e.g. "A3".  Row labels are
// required to be unique across all sections of a showtime, so the label plus
// seat number is unambiguous on its own.
type SeatID string

// SeatStatus is the availability state of a seat for one showtime.  A seat
// is in exactly one status at any instant.  Transitions are monotonic within
// a hold cycle: AVAILABLE→HELD→BOOKED, or AVAILABLE→HELD→AVAILABLE when the
// hold is cancelled or expires.  BOOKED is terminal for the showtime.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatBooked    SeatStatus = "BOOKED"
)

// Row describes one row of seats inside a section as supplied by the
// catalog source.  Booked lists seat numbers sold before the showtime was
// handed to this service (e.g. box-office sales).
type Row struct {
	Label  string   `json:"label"`
	Seats  uint32   `json:"seats"`
	Booked []uint32 `json:"booked,omitempty"`
}

// Section is a pricing/amenity tier within a showtime's auditorium.  The
// unit price is fixed once the showtime is created and is expressed in
// integer minor currency units (e.g. cents) to keep seat totals exact.
type Section struct {
	Name       string `json:"name"`
	PriceUnits int64  `json:"price_units"`
	Rows       []Row  `json:"rows"`
}

// Showtime is a single screening as delivered, fully specified, by the
// external catalog source.  It is immutable once registered; only the
// per-seat availability state changes afterwards.
type Showtime struct {
	ID         string    `json:"id"`
	MovieID    string    `json:"movie_id"`
	TheaterID  string    `json:"theater_id"`
	Auditorium string    `json:"auditorium"`
	StartsAt   time.Time `json:"starts_at"`
	Sections   []Section `json:"sections"`
}

// SeatState is a point-in-time view of one seat, returned by seat-map
// snapshots.  HeldBy and HoldExpiresAt are populated only while HELD.
type SeatState struct {
	ID            SeatID     `json:"id"`
	Section       string     `json:"section"`
	Status        SeatStatus `json:"status"`
	HeldBy        string     `json:"held_by,omitempty"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

// MakeSeatID builds the canonical seat identifier from a row label and a
// one-based seat number.
func MakeSeatID(rowLabel string, number uint32) SeatID {
	return SeatID(fmt.Sprintf("%s%d", rowLabel, number))
}

// Seats expands a section into the identifiers of every seat it declares,
// in row order.
func (s Section) Seats() []SeatID {
	ids := make([]SeatID, 0)
	for _, row := range s.Rows {
		for n := uint32(1); n <= row.Seats; n++ {
			ids = append(ids, MakeSeatID(row.Label, n))
		}
	}
	return ids
}

// PreBooked expands a section into the identifiers of the seats its rows
// declare as already sold.
func (s Section) PreBooked() []SeatID {
	ids := make([]SeatID, 0)
	for _, row := range s.Rows {
		for _, n := range row.Booked {
			ids = append(ids, MakeSeatID(row.Label, n))
		}
	}
	return ids
}
