package rides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ridepool/ridego/internal/domain"
	"github.com/ridepool/ridego/internal/inventory"
	"github.com/ridepool/ridego/internal/metrics"
	redisx "github.com/ridepool/ridego/internal/redis"
	"github.com/ridepool/ridego/internal/repository"
	redisrepo "github.com/ridepool/ridego/internal/repository/redis"
	"github.com/ridepool/ridego/internal/uow"
)

// Service manages the ride lifecycle: publishing, route and capacity
// updates, and deletion. Seat math goes through the inventory ledger;
// deletion and updates are refused while the ride still carries CONFIRMED
// bookings.
type Service struct {
	storage  Storage
	identity Identity
	cache    *redisrepo.Cache
	pubsub   *redisx.RideEventsPubSub
	logger   *slog.Logger
}

func New(storage Storage, identity Identity, cache *redisrepo.Cache, pubsub *redisx.RideEventsPubSub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		storage:  storage,
		identity: identity,
		cache:    cache,
		pubsub:   pubsub,
		logger:   logger,
	}
}

type CreateParams struct {
	Source           string
	Destination      string
	TotalSeats       int
	FarePerSeatCents int64
	DepartAt         time.Time
	CarBrand         string
	CarModel         string
	CarPlate         string
}

// UpdateParams carries the mutable ride fields; nil means keep the current
// value.
type UpdateParams struct {
	Source           *string
	Destination      *string
	TotalSeats       *int
	FarePerSeatCents *int64
	DepartAt         *time.Time
	CarBrand         *string
	CarModel         *string
	CarPlate         *string
}

// Create publishes a ride with a full seat pool. The owner must hold a valid
// driving licence on their profile.
func (s *Service) Create(ctx context.Context, ownerID int64, p CreateParams) (*domain.Ride, error) {
	const op = "service.rides.Create"

	if strings.TrimSpace(p.Source) == "" || strings.TrimSpace(p.Destination) == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidRoute)
	}
	if p.TotalSeats <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidCapacity)
	}
	if p.FarePerSeatCents <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidFare)
	}

	licensed, err := s.identity.HasValidLicence(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}
	if !licensed {
		return nil, fmt.Errorf("%s:%w", op, ErrLicenceRequired)
	}

	ride := &domain.Ride{
		Source:           p.Source,
		Destination:      p.Destination,
		TotalSeats:       p.TotalSeats,
		AvailableSeats:   p.TotalSeats,
		FarePerSeatCents: p.FarePerSeatCents,
		DepartAt:         p.DepartAt,
		OwnerID:          ownerID,
		CarBrand:         p.CarBrand,
		CarModel:         p.CarModel,
		CarPlate:         p.CarPlate,
	}

	id, err := s.storage.CreateRide(ctx, ride)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	ride.ID = id

	return ride, nil
}

// Update changes route, capacity, fare or vehicle fields of an owned ride.
// It is refused while CONFIRMED bookings exist, so capacity never shrinks
// under a passenger and published fares stay stable for booked seats.
func (s *Service) Update(ctx context.Context, ownerID, rideID int64, p UpdateParams) (*domain.Ride, error) {
	const op = "service.rides.Update"

	var updated *domain.Ride

	err := s.storage.Atomic(ctx, func(ctx context.Context, tx Tx, after func(uow.AfterCommit)) error {
		ride, err := s.ownedRideForUpdate(ctx, tx, ownerID, rideID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		live, err := tx.HasConfirmedBookings(ctx, rideID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}
		if live {
			return fmt.Errorf("%s:%w", op, ErrRideHasBookings)
		}

		if p.Source != nil {
			if strings.TrimSpace(*p.Source) == "" {
				return fmt.Errorf("%s:%w", op, ErrInvalidRoute)
			}
			ride.Source = *p.Source
		}
		if p.Destination != nil {
			if strings.TrimSpace(*p.Destination) == "" {
				return fmt.Errorf("%s:%w", op, ErrInvalidRoute)
			}
			ride.Destination = *p.Destination
		}
		if p.FarePerSeatCents != nil {
			if *p.FarePerSeatCents <= 0 {
				return fmt.Errorf("%s:%w", op, ErrInvalidFare)
			}
			ride.FarePerSeatCents = *p.FarePerSeatCents
		}
		if p.DepartAt != nil {
			ride.DepartAt = *p.DepartAt
		}
		if p.CarBrand != nil {
			ride.CarBrand = *p.CarBrand
		}
		if p.CarModel != nil {
			ride.CarModel = *p.CarModel
		}
		if p.CarPlate != nil {
			ride.CarPlate = *p.CarPlate
		}

		if p.TotalSeats != nil {
			if err := inventory.AdjustCapacity(ride, *p.TotalSeats); err != nil {
				return fmt.Errorf("%s:%w", op, s.mapLedgerErr(err, rideID))
			}
		}

		if err := tx.UpdateRide(ctx, ride); err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		updated = ride

		after(func(ctx context.Context) { s.rideChanged(ctx, rideID) })

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete removes an owned ride together with its cancelled booking history.
// Rides with CONFIRMED bookings cannot be deleted.
func (s *Service) Delete(ctx context.Context, ownerID, rideID int64) error {
	const op = "service.rides.Delete"

	return s.storage.Atomic(ctx, func(ctx context.Context, tx Tx, after func(uow.AfterCommit)) error {
		if _, err := s.ownedRideForUpdate(ctx, tx, ownerID, rideID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		live, err := tx.HasConfirmedBookings(ctx, rideID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}
		if live {
			return fmt.Errorf("%s:%w", op, ErrRideHasBookings)
		}

		if err := tx.DeleteBookingsForRide(ctx, rideID); err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		if err := tx.DeleteRide(ctx, rideID); err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		after(func(ctx context.Context) { s.rideChanged(ctx, rideID) })

		return nil
	})
}

// Search lists open rides matching the route filters. Empty filters match
// everything; fully booked rides are excluded.
func (s *Service) Search(ctx context.Context, source, destination string) ([]domain.Ride, error) {
	const op = "service.rides.Search"

	rides, err := s.storage.SearchRides(ctx, source, destination)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	return rides, nil
}

// Mine lists the caller's rides, fully booked ones included.
func (s *Service) Mine(ctx context.Context, ownerID int64) ([]domain.Ride, error) {
	const op = "service.rides.Mine"

	rides, err := s.storage.RidesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	return rides, nil
}

func (s *Service) ownedRideForUpdate(ctx context.Context, tx Tx, ownerID, rideID int64) (*domain.Ride, error) {
	ride, err := tx.RideForUpdate(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRideNotFound
		}
		return nil, s.storageErr(err)
	}

	if ride.OwnerID != ownerID {
		return nil, ErrNotRideOwner
	}

	return ride, nil
}

func (s *Service) mapLedgerErr(err error, rideID int64) error {
	switch {
	case errors.Is(err, inventory.ErrInvalidSeatCount):
		return ErrInvalidCapacity
	case errors.Is(err, inventory.ErrBelowBookedFloor):
		// Updates require zero confirmed bookings, so the booked floor is
		// zero here; hitting it means the stored counters are corrupt.
		s.logger.Error("seat accounting violation", "ride_id", rideID, "error", err)
		metrics.LedgerBugSignals.Inc()
		return fmt.Errorf("%w: %w", ErrBelowBookedFloor, err)
	default:
		return err
	}
}

func (s *Service) storageErr(err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}

func (s *Service) rideChanged(ctx context.Context, rideID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateRide(ctx, rideID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishRideChanged(ctx, rideID)
	}
}
