package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ridepool/ridego/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *UserRepo) With(db DB) *UserRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *UserRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a user and returns the assigned id. A duplicate email maps
// to repository.ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) (int64, error) {
	const op = "postgres.UserRepo.Create"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO users(name, email, password_hash, phone, licence_no, licence_exp)
	   	 VALUES ($1, $2, $3, $4, $5, $6)
	   	 RETURNING id`,
		u.Name, u.Email, u.PasswordHash, u.Phone, u.LicenceNo, u.LicenceExp,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const op = "postgres.UserRepo.GetByEmail"

	return r.get(ctx, op, `WHERE email = $1`, email)
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const op = "postgres.UserRepo.GetByID"

	return r.get(ctx, op, `WHERE id = $1`, id)
}

func (r *UserRepo) get(ctx context.Context, op, where string, arg any) (*domain.User, error) {
	db := r.handle()

	var u domain.User
	if err := db.QueryRow(ctx,
		`SELECT id, name, email, password_hash, phone, licence_no, licence_exp, created_at
	   	 FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone,
		&u.LicenceNo, &u.LicenceExp, &u.CreatedAt); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}

// Update rewrites the profile fields (name, email, phone). A duplicate
// email maps to repository.ErrConflict, same as on insert.
func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	const op = "postgres.UserRepo.Update"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE users SET name = $2, email = $3, phone = $4 WHERE id = $1`,
		u.ID, u.Name, u.Email, u.Phone,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

// HasValidLicence is the eligibility predicate behind ride creation: a user
// may publish rides only with licence details on file.
func (r *UserRepo) HasValidLicence(ctx context.Context, userID int64) (bool, error) {
	const op = "postgres.UserRepo.HasValidLicence"

	db := r.handle()

	var ok bool
	if err := db.QueryRow(ctx,
		`SELECT licence_no <> '' AND licence_exp <> '' FROM users WHERE id = $1`,
		userID,
	).Scan(&ok); err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

func (r *UserRepo) SaveLicence(ctx context.Context, userID int64, licenceNo, licenceExp string) error {
	const op = "postgres.UserRepo.SaveLicence"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE users SET licence_no = $2, licence_exp = $3 WHERE id = $1`,
		userID, licenceNo, licenceExp,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgres.UserRepo.Delete"

	db := r.handle()

	tag, err := db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}
