package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ridepool/ridego/internal/domain"
)

type RideRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *RideRepo) With(db DB) *RideRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *RideRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const rideColumns = `id, source, destination, total_seats, available_seats,
	fare_per_seat_cents, depart_at, owner_id, car_brand, car_model, car_plate, created_at`

func scanRide(row pgx.Row) (*domain.Ride, error) {
	var ride domain.Ride
	err := row.Scan(
		&ride.ID, &ride.Source, &ride.Destination,
		&ride.TotalSeats, &ride.AvailableSeats, &ride.FarePerSeatCents,
		&ride.DepartAt, &ride.OwnerID, &ride.CarBrand, &ride.CarModel,
		&ride.CarPlate, &ride.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

// Create inserts a ride with a full seat pool and returns the assigned id.
func (r *RideRepo) Create(ctx context.Context, ride *domain.Ride) (int64, error) {
	const op = "postgres.RideRepo.Create"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO rides(source, destination, total_seats, available_seats,
			fare_per_seat_cents, depart_at, owner_id, car_brand, car_model, car_plate)
     	 VALUES ($1, $2, $3, $3, $4, $5, $6, $7, $8, $9)
     	 RETURNING id`,
		ride.Source, ride.Destination, ride.TotalSeats,
		ride.FarePerSeatCents, ride.DepartAt, ride.OwnerID,
		ride.CarBrand, ride.CarModel, ride.CarPlate,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *RideRepo) Get(ctx context.Context, id int64) (*domain.Ride, error) {
	const op = "postgres.RideRepo.Get"

	db := r.handle()

	ride, err := scanRide(db.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ride, nil
}

// GetForUpdate locks the ride row for the rest of the transaction. Every
// operation that mutates the ride's seat pool or its booking set takes this
// lock first, which serializes the ride's consistency domain.
func (r *RideRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Ride, error) {
	const op = "postgres.RideRepo.GetForUpdate"

	db := r.handle()

	ride, err := scanRide(db.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ride, nil
}

// SetAvailableSeats persists a seat counter computed by the inventory ledger.
func (r *RideRepo) SetAvailableSeats(ctx context.Context, id int64, available int) error {
	const op = "postgres.RideRepo.SetAvailableSeats"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE rides SET available_seats = $2 WHERE id = $1`, id, available)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

// Update persists route, capacity and fare fields after a lifecycle mutation.
func (r *RideRepo) Update(ctx context.Context, ride *domain.Ride) error {
	const op = "postgres.RideRepo.Update"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE rides
	   	 SET source = $2, destination = $3, total_seats = $4,
	       	 available_seats = $5, fare_per_seat_cents = $6,
	       	 depart_at = $7, car_brand = $8, car_model = $9, car_plate = $10
	 	 WHERE id = $1`,
		ride.ID, ride.Source, ride.Destination, ride.TotalSeats,
		ride.AvailableSeats, ride.FarePerSeatCents, ride.DepartAt,
		ride.CarBrand, ride.CarModel, ride.CarPlate,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

func (r *RideRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgres.RideRepo.Delete"

	db := r.handle()

	tag, err := db.Exec(ctx, `DELETE FROM rides WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

// Search returns open rides (available_seats > 0) whose route fields contain
// the given substrings, case-insensitively. Empty filters match everything.
func (r *RideRepo) Search(ctx context.Context, source, destination string) ([]domain.Ride, error) {
	const op = "postgres.RideRepo.Search"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+rideColumns+`
	   	 FROM rides
	  	 WHERE available_seats > 0
	    	AND ($1 = '' OR source ILIKE '%' || $1 || '%')
	    	AND ($2 = '' OR destination ILIKE '%' || $2 || '%')
	  	 ORDER BY id`,
		source, destination,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	return collectRides(op, rows)
}

func (r *RideRepo) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Ride, error) {
	const op = "postgres.RideRepo.ListByOwner"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE owner_id = $1 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	return collectRides(op, rows)
}

func collectRides(op string, rows pgx.Rows) ([]domain.Ride, error) {
	var rides []domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		rides = append(rides, *ride)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return rides, nil
}
