package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/ridepool/ridego/internal/domain"
	"github.com/ridepool/ridego/internal/uow"
)

// Tx is the slice of the persistence collaborator visible inside one atomic
// unit. An atomic unit spans one ride's consistency domain; the
// account-deletion cascade is the one caller that touches several rides, and
// it locks them in ascending id order.
type Tx interface {
	// RideForUpdate returns the ride locked for the rest of the unit.
	RideForUpdate(ctx context.Context, rideID int64) (*domain.Ride, error)
	// SetAvailableSeats persists a counter computed by the inventory ledger.
	SetAvailableSeats(ctx context.Context, rideID int64, available int) error

	InsertBooking(ctx context.Context, b *domain.Booking) error
	BookingForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	SaveBookingSeats(ctx context.Context, id uuid.UUID, seats int, fareTotalCents int64) error
	MarkBookingCancelled(ctx context.Context, id uuid.UUID) error

	ActiveBookingsByUser(ctx context.Context, userID int64) ([]domain.UserBooking, error)
	RidesByOwner(ctx context.Context, ownerID int64) ([]domain.Ride, error)
	HasConfirmedBookings(ctx context.Context, rideID int64) (bool, error)
	DeleteBookingsForRide(ctx context.Context, rideID int64) error
	DeleteRide(ctx context.Context, rideID int64) error
	DeleteUser(ctx context.Context, userID int64) error
}

// Storage is the persistence port of the coordinator. Atomic either applies
// everything fn did or nothing; after-commit hooks run only on success.
type Storage interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx, after func(uow.AfterCommit)) error) error

	ActiveBookingsByUser(ctx context.Context, userID int64) ([]domain.UserBooking, error)
}
