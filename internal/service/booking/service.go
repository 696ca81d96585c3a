package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ridepool/ridego/internal/domain"
	"github.com/ridepool/ridego/internal/inventory"
	"github.com/ridepool/ridego/internal/metrics"
	redisx "github.com/ridepool/ridego/internal/redis"
	"github.com/ridepool/ridego/internal/repository"
	redisrepo "github.com/ridepool/ridego/internal/repository/redis"
	"github.com/ridepool/ridego/internal/uow"
)

type Config struct {
	// CancelWindow bounds user-initiated cancellation; zero means the
	// default ten minutes.
	CancelWindow time.Duration
}

// Service is the booking coordinator: it resolves the target ride and
// booking, applies the seat delta through the inventory ledger and the state
// transition through the booking lifecycle, and commits both as one unit.
type Service struct {
	storage Storage
	cache   *redisrepo.Cache
	pubsub  *redisx.RideEventsPubSub
	logger  *slog.Logger
	cfg     Config
}

func New(
	storage Storage,
	cache *redisrepo.Cache,
	pubsub *redisx.RideEventsPubSub,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.CancelWindow <= 0 {
		cfg.CancelWindow = inventory.CancelWindow
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		storage: storage,
		cache:   cache,
		pubsub:  pubsub,
		logger:  logger,
		cfg:     cfg,
	}
}

// Book reserves seats on a ride and records a CONFIRMED booking.
//
// The reserve happens before the booking record is written, inside the same
// transaction, so a failed reserve never leaves a booking behind and a failed
// insert rolls the reserve back.
//
// Returns:
//   - *domain.Booking: the confirmed booking.
//   - error: booking.ErrRideNotFound if the ride does not exist.
//   - error: booking.ErrInsufficientSeats if fewer than seats are available.
func (s *Service) Book(ctx context.Context, userID, rideID int64, seats int) (*domain.Booking, error) {
	const op = "service.booking.Book"

	if seats <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidSeatCount)
	}

	var booked *domain.Booking

	err := s.storage.Atomic(ctx, func(ctx context.Context, tx Tx, after func(uow.AfterCommit)) error {
		ride, err := tx.RideForUpdate(ctx, rideID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrRideNotFound)
			}
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		if err := inventory.Reserve(ride, seats); err != nil {
			metrics.BookingsRejected.WithLabelValues("insufficient_seats").Inc()
			return fmt.Errorf("%s:%w", op, s.mapLedgerErr(err, rideID))
		}

		if err := tx.SetAvailableSeats(ctx, rideID, ride.AvailableSeats); err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		b := &domain.Booking{
			ID:             uuid.New(),
			RideID:         rideID,
			UserID:         userID,
			Seats:          seats,
			FareTotalCents: int64(seats) * ride.FarePerSeatCents,
			Status:         domain.BookingConfirmed,
			CreatedAt:      time.Now(),
		}

		if err := tx.InsertBooking(ctx, b); err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		booked = b

		after(func(ctx context.Context) {
			s.rideChanged(ctx, rideID)
			metrics.BookingsCreated.Inc()
			metrics.SeatsReserved.Add(float64(seats))
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return booked, nil
}

// ModifySeats changes the seat count of a CONFIRMED booking, resolving the
// delta against the ride's ledger: reserve when growing, release when
// shrinking. The fare total is recomputed from the new count, never adjusted
// incrementally. A zero delta is a no-op success.
//
// Returns:
//   - *domain.Booking: the updated booking.
//   - error: booking.ErrBookingNotFound if the booking is missing or owned by
//     someone else.
//   - error: booking.ErrAlreadyCancelled if the booking is CANCELLED.
//   - error: booking.ErrInsufficientSeats if the increase cannot be reserved.
func (s *Service) ModifySeats(ctx context.Context, userID int64, bookingID uuid.UUID, newSeats int) (*domain.Booking, error) {
	const op = "service.booking.ModifySeats"

	if newSeats <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidSeatCount)
	}

	var updated *domain.Booking

	err := s.storage.Atomic(ctx, func(ctx context.Context, tx Tx, after func(uow.AfterCommit)) error {
		b, err := s.ownedBookingForUpdate(ctx, tx, userID, bookingID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if b.Status != domain.BookingConfirmed {
			return fmt.Errorf("%s:%w", op, ErrAlreadyCancelled)
		}

		ride, err := tx.RideForUpdate(ctx, b.RideID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrRideNotFound)
			}
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		delta := newSeats - b.Seats

		if delta == 0 {
			updated = b
			return nil
		}

		if delta > 0 {
			err = inventory.Reserve(ride, delta)
		} else {
			err = inventory.Release(ride, -delta)
		}
		if err != nil {
			metrics.BookingsRejected.WithLabelValues("seat_delta").Inc()
			return fmt.Errorf("%s:%w", op, s.mapLedgerErr(err, ride.ID))
		}

		if err := tx.SetAvailableSeats(ctx, ride.ID, ride.AvailableSeats); err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		if err := inventory.ApplySeatChange(b, newSeats, ride.FarePerSeatCents); err != nil {
			return fmt.Errorf("%s:%w", op, s.mapLedgerErr(err, ride.ID))
		}

		if err := tx.SaveBookingSeats(ctx, b.ID, b.Seats, b.FareTotalCents); err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		updated = b
		rideID := ride.ID

		after(func(ctx context.Context) {
			s.rideChanged(ctx, rideID)
			if delta > 0 {
				metrics.SeatsReserved.Add(float64(delta))
			} else {
				metrics.SeatsReleased.Add(float64(-delta))
			}
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Cancel transitions the booking to CANCELLED and returns its seats to the
// ride, provided now is inside the cancellation window. Cancelling an
// already-cancelled booking fails with ErrAlreadyCancelled and releases
// nothing.
func (s *Service) Cancel(ctx context.Context, userID int64, bookingID uuid.UUID, now time.Time) (*domain.Booking, error) {
	const op = "service.booking.Cancel"

	var cancelled *domain.Booking

	err := s.storage.Atomic(ctx, func(ctx context.Context, tx Tx, after func(uow.AfterCommit)) error {
		b, err := s.ownedBookingForUpdate(ctx, tx, userID, bookingID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		ride, err := tx.RideForUpdate(ctx, b.RideID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrRideNotFound)
			}
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		if err := inventory.Cancel(b, now, s.cfg.CancelWindow); err != nil {
			metrics.BookingsRejected.WithLabelValues("cancel").Inc()
			return fmt.Errorf("%s:%w", op, s.mapLedgerErr(err, ride.ID))
		}

		if err := inventory.Release(ride, b.Seats); err != nil {
			return fmt.Errorf("%s:%w", op, s.mapLedgerErr(err, ride.ID))
		}

		if err := tx.SetAvailableSeats(ctx, ride.ID, ride.AvailableSeats); err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		if err := tx.MarkBookingCancelled(ctx, b.ID); err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		cancelled = b
		rideID := ride.ID
		seats := b.Seats

		after(func(ctx context.Context) {
			s.rideChanged(ctx, rideID)
			metrics.BookingsCancelled.Inc()
			metrics.SeatsReleased.Add(float64(seats))
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// UserBookings lists the user's CONFIRMED bookings with their ride routes.
func (s *Service) UserBookings(ctx context.Context, userID int64) ([]domain.UserBooking, error) {
	const op = "service.booking.UserBookings"

	bookings, err := s.storage.ActiveBookingsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.storageErr(err))
	}

	return bookings, nil
}

// DeleteAccount runs the account-deletion cascade in one atomic unit:
// force-cancel every active booking the user holds (the window does not
// apply to the administrative override), delete every owned ride left with
// zero active bookings along with its cancelled history, then delete the
// user. A booking racing with the cascade either commits before it or finds
// the ride gone.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) error {
	const op = "service.booking.DeleteAccount"

	return s.storage.Atomic(ctx, func(ctx context.Context, tx Tx, after func(uow.AfterCommit)) error {
		bookings, err := tx.ActiveBookingsByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		// Ascending ride id keeps the lock order stable across concurrent
		// cascades.
		sort.Slice(bookings, func(i, j int) bool { return bookings[i].RideID < bookings[j].RideID })

		touched := make(map[int64]struct{})

		for i := range bookings {
			b := &bookings[i].Booking

			// A missing ride row still leaves the booking to cancel, so the
			// user row never strands a CONFIRMED booking behind it.
			ride, err := tx.RideForUpdate(ctx, b.RideID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, s.storageErr(err))
			}

			if err := inventory.ForceCancel(b); err != nil {
				continue
			}

			if ride != nil {
				if err := inventory.Release(ride, b.Seats); err != nil {
					return fmt.Errorf("%s:%w", op, s.mapLedgerErr(err, ride.ID))
				}

				if err := tx.SetAvailableSeats(ctx, ride.ID, ride.AvailableSeats); err != nil {
					return fmt.Errorf("%s:%w", op, s.storageErr(err))
				}
			}

			if err := tx.MarkBookingCancelled(ctx, b.ID); err != nil {
				return fmt.Errorf("%s:%w", op, s.storageErr(err))
			}

			if ride != nil {
				touched[ride.ID] = struct{}{}
			}
		}

		rides, err := tx.RidesByOwner(ctx, userID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		sort.Slice(rides, func(i, j int) bool { return rides[i].ID < rides[j].ID })

		for _, ride := range rides {
			if _, err := tx.RideForUpdate(ctx, ride.ID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return fmt.Errorf("%s:%w", op, s.storageErr(err))
			}

			live, err := tx.HasConfirmedBookings(ctx, ride.ID)
			if err != nil {
				return fmt.Errorf("%s:%w", op, s.storageErr(err))
			}
			if live {
				// Someone else still rides here; the ride outlives its owner.
				continue
			}

			if err := tx.DeleteBookingsForRide(ctx, ride.ID); err != nil {
				return fmt.Errorf("%s:%w", op, s.storageErr(err))
			}

			if err := tx.DeleteRide(ctx, ride.ID); err != nil {
				return fmt.Errorf("%s:%w", op, s.storageErr(err))
			}

			touched[ride.ID] = struct{}{}
		}

		if err := tx.DeleteUser(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrUserNotFound)
			}
			return fmt.Errorf("%s:%w", op, s.storageErr(err))
		}

		cancelledCount := len(bookings)

		after(func(ctx context.Context) {
			for rideID := range touched {
				s.rideChanged(ctx, rideID)
			}
			metrics.BookingsCancelled.Add(float64(cancelledCount))
		})

		return nil
	})
}

func (s *Service) ownedBookingForUpdate(ctx context.Context, tx Tx, userID int64, bookingID uuid.UUID) (*domain.Booking, error) {
	b, err := tx.BookingForUpdate(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, s.storageErr(err)
	}

	// Bookings of other users are reported as absent, not as forbidden.
	if b.UserID != userID {
		return nil, ErrBookingNotFound
	}

	return b, nil
}

// mapLedgerErr translates inventory sentinels into the coordinator's error
// kinds. Accounting violations are logged as bug signals before surfacing.
func (s *Service) mapLedgerErr(err error, rideID int64) error {
	switch {
	case errors.Is(err, inventory.ErrInsufficientSeats):
		return ErrInsufficientSeats
	case errors.Is(err, inventory.ErrInvalidSeatCount):
		return ErrInvalidSeatCount
	case errors.Is(err, inventory.ErrAlreadyCancelled):
		return ErrAlreadyCancelled
	case errors.Is(err, inventory.ErrCancellationWindowExpired):
		return ErrWindowExpired
	case errors.Is(err, inventory.ErrCapacityOverflow), errors.Is(err, inventory.ErrBelowBookedFloor):
		s.logger.Error("seat accounting violation", "ride_id", rideID, "error", err)
		metrics.LedgerBugSignals.Inc()
		return fmt.Errorf("%w: %w", ErrSeatAccounting, err)
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
