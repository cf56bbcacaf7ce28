package database

import (
	"context"
	"database/sql"
)

// migrations are applied in order at startup.  Every statement is
// idempotent so a restart against an existing schema is a no-op.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS showtimes (
		id         VARCHAR(64)  NOT NULL,
		movie_id   VARCHAR(64)  NOT NULL,
		theater_id VARCHAR(64)  NOT NULL,
		auditorium VARCHAR(128) NOT NULL DEFAULT '',
		starts_at  DATETIME     NOT NULL,
		layout     JSON         NOT NULL,
		created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id             VARCHAR(36)  NOT NULL,
		reservation_id VARCHAR(36)  NOT NULL,
		user_id        VARCHAR(64)  NOT NULL,
		showtime_id    VARCHAR(64)  NOT NULL,
		total_units    BIGINT       NOT NULL,
		reference      VARCHAR(16)  NOT NULL,
		confirmed_at   DATETIME     NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_bookings_reservation (reservation_id),
		KEY idx_bookings_user (user_id, confirmed_at),
		KEY idx_bookings_showtime (showtime_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS booking_seats (
		booking_id VARCHAR(36) NOT NULL,
		seat_id    VARCHAR(16) NOT NULL,
		position   INT         NOT NULL,
		PRIMARY KEY (booking_id, seat_id),
		CONSTRAINT fk_booking_seats_booking FOREIGN KEY (booking_id) REFERENCES bookings (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
