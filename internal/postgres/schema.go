package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Relations between users, rides and bookings are id-based on purpose: the
// account-deletion cascade decides record by record what survives, so no
// foreign-key ON DELETE behavior is wanted here.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            BIGSERIAL PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    phone         TEXT NOT NULL DEFAULT '',
    licence_no    TEXT NOT NULL DEFAULT '',
    licence_exp   TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rides (
    id                  BIGSERIAL PRIMARY KEY,
    source              TEXT NOT NULL,
    destination         TEXT NOT NULL,
    total_seats         INT NOT NULL CHECK (total_seats > 0),
    available_seats     INT NOT NULL CHECK (available_seats >= 0 AND available_seats <= total_seats),
    fare_per_seat_cents BIGINT NOT NULL CHECK (fare_per_seat_cents > 0),
    depart_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    owner_id            BIGINT NOT NULL,
    car_brand           TEXT NOT NULL DEFAULT '',
    car_model           TEXT NOT NULL DEFAULT '',
    car_plate           TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_rides_owner ON rides (owner_id);
CREATE INDEX IF NOT EXISTS idx_rides_open ON rides (id) WHERE available_seats > 0;

CREATE TABLE IF NOT EXISTS bookings (
    id               UUID PRIMARY KEY,
    ride_id          BIGINT NOT NULL,
    user_id          BIGINT NOT NULL,
    seats            INT NOT NULL CHECK (seats > 0),
    fare_total_cents BIGINT NOT NULL,
    status           TEXT NOT NULL CHECK (status IN ('CONFIRMED', 'CANCELLED')),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bookings_ride ON bookings (ride_id);
CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id);
`

// EnsureSchema creates the tables on startup. Statements are idempotent, so
// running several instances against the same database is safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const op = "postgres.EnsureSchema"

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
