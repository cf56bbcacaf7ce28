// Package catalog persists showtime definitions received from the external
// catalog source.  The service never fetches or caches catalog data itself;
// it stores the fully specified showtime it was handed so that inventory
// and pricing can be rebuilt after a restart.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/showtix/booking/internal/model"
)

// ErrNotFound is returned when no showtime exists with the given ID.
var ErrNotFound = errors.New("catalog: showtime not found")

// ErrExists is returned when saving a showtime ID that is already stored.
// Showtimes are immutable once scheduled, so a duplicate is a caller error.
var ErrExists = errors.New("catalog: showtime already exists")

// mysqlDupEntry is the MySQL error number for a unique-key violation.
const mysqlDupEntry = 1062

const (
	insertShowtimeQuery = `INSERT INTO showtimes (id, movie_id, theater_id, auditorium, starts_at, layout) VALUES (?, ?, ?, ?, ?, ?)`

	selectShowtimeQuery = `SELECT id, movie_id, theater_id, auditorium, starts_at, layout FROM showtimes WHERE id = ?`

	selectAllShowtimesQuery = `SELECT id, movie_id, theater_id, auditorium, starts_at, layout FROM showtimes ORDER BY starts_at`
)

// Store reads and writes showtime definitions.  The section layout is kept
// as a JSON column: it is written once, read back whole, and never queried
// by field.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store bound to the given database.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Save persists a new showtime definition.  Saving an existing ID returns
// ErrExists and writes nothing.  Uniqueness is enforced by the primary key
// alone, so two concurrent saves of the same ID race safely: one inserts,
// the other gets ErrExists.
func (s *Store) Save(ctx context.Context, st *model.Showtime) error {
	layout, err := json.Marshal(st.Sections)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertShowtimeQuery,
		st.ID, st.MovieID, st.TheaterID, st.Auditorium,
		st.StartsAt.UTC().Format("2006-01-02 15:04:05"), layout,
	)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDupEntry {
		return ErrExists
	}
	return err
}

// Get returns one showtime definition or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*model.Showtime, error) {
	return scanShowtime(s.db.QueryRowContext(ctx, selectShowtimeQuery, id))
}

// All returns every stored showtime ordered by start time.  Used at
// startup to rebuild inventory and pricing state.
func (s *Store) All(ctx context.Context) ([]model.Showtime, error) {
	rows, err := s.db.QueryContext(ctx, selectAllShowtimesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Showtime, 0)
	for rows.Next() {
		st, err := scanShowtimeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanShowtime(row *sql.Row) (*model.Showtime, error) {
	st, err := scanShowtimeRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

func scanShowtimeRow(row rowScanner) (*model.Showtime, error) {
	var st model.Showtime
	var startsAt time.Time
	var layout []byte
	if err := row.Scan(&st.ID, &st.MovieID, &st.TheaterID, &st.Auditorium, &startsAt, &layout); err != nil {
		return nil, err
	}
	st.StartsAt = startsAt.UTC()
	if err := json.Unmarshal(layout, &st.Sections); err != nil {
		return nil, err
	}
	return &st, nil
}
