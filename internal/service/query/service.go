// Package query serves the read side of the ride catalog: ride summaries and
// seat availability, cached read-through with short TTLs. Writers invalidate
// the projections after commit, so a stale read is bounded by the TTL even if
// an invalidation is lost.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ridepool/ridego/internal/domain"
	redisx "github.com/ridepool/ridego/internal/redis"
	"github.com/ridepool/ridego/internal/repository"
	redisrepo "github.com/ridepool/ridego/internal/repository/redis"
)

var (
	ErrRideNotFound       = errors.New("ride not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

const (
	summaryTTL      = 60 * time.Second
	availabilityTTL = 15 * time.Second
)

// Reader is the persistence port of the read side.
type Reader interface {
	RideByID(ctx context.Context, id int64) (*domain.Ride, error)
}

type Service struct {
	reader Reader
	cache  *redisrepo.Cache
}

func New(reader Reader, cache *redisrepo.Cache) *Service {
	return &Service{reader: reader, cache: cache}
}

// Ride returns the ride summary, cached for up to a minute.
func (s *Service) Ride(ctx context.Context, id int64) (*domain.Ride, error) {
	const op = "service.query.Ride"

	if s.cache == nil {
		ride, err := s.load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return ride, nil
	}

	ride, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyRideSummary(id), summaryTTL,
		func(ctx context.Context) (domain.Ride, error) {
			r, err := s.load(ctx, id)
			if err != nil {
				return domain.Ride{}, err
			}
			return *r, nil
		})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &ride, nil
}

// Availability returns the ride's seat counters. The TTL is shorter than the
// summary's: counters move on every booking.
func (s *Service) Availability(ctx context.Context, id int64) (domain.SeatCounts, error) {
	const op = "service.query.Availability"

	if s.cache == nil {
		ride, err := s.load(ctx, id)
		if err != nil {
			return domain.SeatCounts{}, fmt.Errorf("%s:%w", op, err)
		}
		return ride.Counts(), nil
	}

	counts, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyRideAvailability(id), availabilityTTL,
		func(ctx context.Context) (domain.SeatCounts, error) {
			r, err := s.load(ctx, id)
			if err != nil {
				return domain.SeatCounts{}, err
			}
			return r.Counts(), nil
		})
	if err != nil {
		return domain.SeatCounts{}, fmt.Errorf("%s:%w", op, err)
	}

	return counts, nil
}

func (s *Service) load(ctx context.Context, id int64) (*domain.Ride, error) {
	ride, err := s.reader.RideByID(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRideNotFound
		case errors.Is(err, repository.ErrUnavailable):
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return nil, err
	}

	return ride, nil
}
