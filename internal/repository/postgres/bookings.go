package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ridepool/ridego/internal/domain"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	db := r.handle()

	if err := db.QueryRow(ctx,
		`INSERT INTO bookings(id, ride_id, user_id, seats, fare_total_cents, status, created_at)
	   	 VALUES ($1, $2, $3, $4, $5, $6, $7)
	   	 RETURNING created_at`,
		b.ID, b.RideID, b.UserID, b.Seats, b.FareTotalCents, b.Status, b.CreatedAt,
	).Scan(&b.CreatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// GetForUpdate locks the booking row. Callers lock the booking before its
// ride so every code path takes locks in the same order.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetForUpdate"

	db := r.handle()

	var b domain.Booking
	if err := db.QueryRow(ctx,
		`SELECT id, ride_id, user_id, seats, fare_total_cents, status, created_at
	   	 FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&b.ID, &b.RideID, &b.UserID, &b.Seats, &b.FareTotalCents, &b.Status, &b.CreatedAt); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

// SaveSeats persists a seat-count change with its recomputed fare total.
func (r *BookingRepo) SaveSeats(ctx context.Context, id uuid.UUID, seats int, fareTotalCents int64) error {
	const op = "postgres.BookingRepo.SaveSeats"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings SET seats = $2, fare_total_cents = $3
	  	 WHERE id = $1 AND status = 'CONFIRMED'`,
		id, seats, fareTotalCents,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

func (r *BookingRepo) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.BookingRepo.MarkCancelled"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings SET status = 'CANCELLED'
	  	 WHERE id = $1 AND status = 'CONFIRMED'`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

// HasConfirmed reports whether the ride has at least one CONFIRMED booking.
// Cancelled history does not count.
func (r *BookingRepo) HasConfirmed(ctx context.Context, rideID int64) (bool, error) {
	const op = "postgres.BookingRepo.HasConfirmed"

	db := r.handle()

	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS(
	    	SELECT 1 FROM bookings WHERE ride_id = $1 AND status = 'CONFIRMED')`,
		rideID,
	).Scan(&exists); err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

// ListActiveByUser returns the user's CONFIRMED bookings joined with the
// route of each ride.
func (r *BookingRepo) ListActiveByUser(ctx context.Context, userID int64) ([]domain.UserBooking, error) {
	const op = "postgres.BookingRepo.ListActiveByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT b.id, b.ride_id, b.user_id, b.seats, b.fare_total_cents,
	        	b.status, b.created_at, r.source, r.destination
	   	 FROM bookings b
	   	 JOIN rides r ON r.id = b.ride_id
	  	 WHERE b.user_id = $1 AND b.status = 'CONFIRMED'
	  	 ORDER BY b.created_at`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var bookings []domain.UserBooking
	for rows.Next() {
		var b domain.UserBooking
		if err := rows.Scan(
			&b.ID, &b.RideID, &b.UserID, &b.Seats, &b.FareTotalCents,
			&b.Status, &b.CreatedAt, &b.RideSource, &b.RideDestination,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return bookings, nil
}

// DeleteForRide removes the ride's booking history. Only called after the
// ride is confirmed to have no active bookings.
func (r *BookingRepo) DeleteForRide(ctx context.Context, rideID int64) error {
	const op = "postgres.BookingRepo.DeleteForRide"

	if _, err := r.handle().Exec(ctx,
		`DELETE FROM bookings WHERE ride_id = $1`, rideID); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
