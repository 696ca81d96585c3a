package rides

import (
	"context"

	"github.com/ridepool/ridego/internal/domain"
	"github.com/ridepool/ridego/internal/uow"
)

// Tx covers the ride mutations of one atomic unit. Lifecycle mutations take
// the ride row lock first so they serialize against concurrent bookings on
// the same ride.
type Tx interface {
	RideForUpdate(ctx context.Context, rideID int64) (*domain.Ride, error)
	UpdateRide(ctx context.Context, ride *domain.Ride) error
	HasConfirmedBookings(ctx context.Context, rideID int64) (bool, error)
	DeleteBookingsForRide(ctx context.Context, rideID int64) error
	DeleteRide(ctx context.Context, rideID int64) error
}

type Storage interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx, after func(uow.AfterCommit)) error) error

	CreateRide(ctx context.Context, ride *domain.Ride) (int64, error)
	SearchRides(ctx context.Context, source, destination string) ([]domain.Ride, error)
	RidesByOwner(ctx context.Context, ownerID int64) ([]domain.Ride, error)
}

// Identity answers whether a user may publish rides.
type Identity interface {
	HasValidLicence(ctx context.Context, userID int64) (bool, error)
}
