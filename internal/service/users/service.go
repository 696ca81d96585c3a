package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ridepool/ridego/internal/auth"
	"github.com/ridepool/ridego/internal/domain"
	"github.com/ridepool/ridego/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")

	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store is the persistence port of the identity service.
type Store interface {
	CreateUser(ctx context.Context, u *domain.User) (int64, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	UserByID(ctx context.Context, id int64) (*domain.User, error)
	UpdateUser(ctx context.Context, u *domain.User) error
	SaveLicence(ctx context.Context, userID int64, licenceNo, licenceExp string) error
	HasValidLicence(ctx context.Context, userID int64) (bool, error)
}

type Service struct {
	store  Store
	tokens *auth.JWTService
}

func New(store Store, tokens *auth.JWTService) *Service {
	return &Service{store: store, tokens: tokens}
}

type RegisterParams struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// Register creates a user with a bcrypt password hash. Emails are unique,
// compared lowercased.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*domain.User, error) {
	const op = "service.users.Register"

	if len(p.Password) < 8 {
		return nil, fmt.Errorf("%s:%w", op, ErrWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	u := &domain.User{
		Name:         p.Name,
		Email:        strings.ToLower(strings.TrimSpace(p.Email)),
		PasswordHash: string(hash),
		Phone:        p.Phone,
	}

	id, err := s.store.CreateUser(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	u.ID = id

	return u, nil
}

// Login verifies the password and issues a bearer token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	const op = "service.users.Login"

	u, err := s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, fmt.Errorf("%s:%w", op, ErrInvalidCredentials)
		}
		return "", nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("%s:%w", op, ErrInvalidCredentials)
	}

	token, err := s.tokens.GenerateToken(u.ID, u.Email)
	if err != nil {
		return "", nil, fmt.Errorf("%s:%w", op, err)
	}

	return token, u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.User, error) {
	const op = "service.users.Get"

	u, err := s.store.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	return u, nil
}

// UpdateProfileParams carries the mutable profile fields; nil keeps the
// current value.
type UpdateProfileParams struct {
	Name  *string
	Email *string
	Phone *string
}

// UpdateProfile changes name, email or phone. A new email is normalized the
// same way as at registration and must stay unique.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, p UpdateProfileParams) (*domain.User, error) {
	const op = "service.users.UpdateProfile"

	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}

	if err := s.store.UpdateUser(ctx, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s:%w", op, ErrEmailTaken)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	return u, nil
}

// SaveLicence stores driving-licence details, making the user eligible to
// publish rides.
func (s *Service) SaveLicence(ctx context.Context, userID int64, licenceNo, licenceExp string) error {
	const op = "service.users.SaveLicence"

	if err := s.store.SaveLicence(ctx, userID, licenceNo, licenceExp); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	return nil
}

// HasValidLicence reports ride-publishing eligibility. It satisfies the
// identity port of the ride lifecycle service.
func (s *Service) HasValidLicence(ctx context.Context, userID int64) (bool, error) {
	const op = "service.users.HasValidLicence"

	ok, err := s.store.HasValidLicence(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%s:%w", op, ErrUserNotFound)
		}
		return false, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	return ok, nil
}

func (s *Service) storageErr(err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}
