package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/showtix/booking/internal/model"
)

// mysqlDupEntry is the MySQL error number for a unique-key violation.
const mysqlDupEntry = 1062

const (
	insertBookingQuery = `INSERT INTO bookings (id, reservation_id, user_id, showtime_id, total_units, reference, confirmed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertSeatQuery = `INSERT INTO booking_seats (booking_id, seat_id, position) VALUES (?, ?, ?)`

	selectByReservationQuery = `SELECT id, reservation_id, user_id, showtime_id, total_units, reference, confirmed_at FROM bookings WHERE reservation_id = ?`

	selectByIDQuery = `SELECT id, reservation_id, user_id, showtime_id, total_units, reference, confirmed_at FROM bookings WHERE id = ?`

	selectByUserQuery = `SELECT id, reservation_id, user_id, showtime_id, total_units, reference, confirmed_at FROM bookings WHERE user_id = ? ORDER BY confirmed_at DESC, id DESC`

	selectSeatsQuery = `SELECT seat_id FROM booking_seats WHERE booking_id = ? ORDER BY position`

	selectSeatsByShowtimeQuery = `SELECT bs.seat_id FROM booking_seats bs JOIN bookings b ON b.id = bs.booking_id WHERE b.showtime_id = ?`
)

// MySQLStore persists bookings in the bookings and booking_seats tables.
// The unique key on bookings.reservation_id is what makes Append safe to
// retry: the second insert for the same reservation trips a duplicate-key
// error and the original record is read back instead.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore returns a MySQLStore bound to the given database.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

// Append inserts the booking and its seats in one transaction.  A
// duplicate reservation_id rolls the transaction back and returns the
// already-stored record, satisfying the idempotence requirement.
func (s *MySQLStore) Append(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, insertBookingQuery,
		b.ID, b.ReservationID, b.UserID, b.ShowtimeID, b.TotalUnits, b.Reference,
		b.ConfirmedAt.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDupEntry {
			_ = tx.Rollback()
			return s.getByReservation(ctx, b.ReservationID)
		}
		return nil, err
	}
	for i, seat := range b.SeatIDs {
		if _, err := tx.ExecContext(ctx, insertSeatQuery, b.ID, string(seat), i); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	stored := *b
	return &stored, nil
}

func (s *MySQLStore) getByReservation(ctx context.Context, reservationID string) (*model.Booking, error) {
	b, err := s.scanOne(s.db.QueryRowContext(ctx, selectByReservationQuery, reservationID))
	if err != nil {
		return nil, err
	}
	if err := s.loadSeats(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Get returns a booking by its ID, or ErrNotFound.
func (s *MySQLStore) Get(ctx context.Context, bookingID string) (*model.Booking, error) {
	b, err := s.scanOne(s.db.QueryRowContext(ctx, selectByIDQuery, bookingID))
	if err != nil {
		return nil, err
	}
	if err := s.loadSeats(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListByUser returns all bookings for a user, newest confirmation first.
func (s *MySQLStore) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	rows, err := s.db.QueryContext(ctx, selectByUserQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		var b model.Booking
		var confirmed time.Time
		if err := rows.Scan(&b.ID, &b.ReservationID, &b.UserID, &b.ShowtimeID, &b.TotalUnits, &b.Reference, &confirmed); err != nil {
			return nil, err
		}
		b.ConfirmedAt = confirmed.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadSeats(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SeatsByShowtime returns every booked seat for a showtime.
func (s *MySQLStore) SeatsByShowtime(ctx context.Context, showtimeID string) ([]model.SeatID, error) {
	rows, err := s.db.QueryContext(ctx, selectSeatsByShowtimeQuery, showtimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SeatID
	for rows.Next() {
		var seat string
		if err := rows.Scan(&seat); err != nil {
			return nil, err
		}
		out = append(out, model.SeatID(seat))
	}
	return out, rows.Err()
}

func (s *MySQLStore) scanOne(row *sql.Row) (*model.Booking, error) {
	var b model.Booking
	var confirmed time.Time
	err := row.Scan(&b.ID, &b.ReservationID, &b.UserID, &b.ShowtimeID, &b.TotalUnits, &b.Reference, &confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.ConfirmedAt = confirmed.UTC()
	return &b, nil
}

func (s *MySQLStore) loadSeats(ctx context.Context, b *model.Booking) error {
	rows, err := s.db.QueryContext(ctx, selectSeatsQuery, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	b.SeatIDs = b.SeatIDs[:0]
	for rows.Next() {
		var seat string
		if err := rows.Scan(&seat); err != nil {
			return err
		}
		b.SeatIDs = append(b.SeatIDs, model.SeatID(seat))
	}
	return rows.Err()
}
