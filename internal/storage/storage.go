// Package storage binds the service ports to the postgres store: each
// adapter hands the services a transactional view built from the repository
// With(tx) copies, and routes atomic units through the unit of work so
// after-commit hooks fire only for committed transactions.
package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/ridepool/ridego/internal/domain"
	"github.com/ridepool/ridego/internal/repository/postgres"
	"github.com/ridepool/ridego/internal/service/booking"
	"github.com/ridepool/ridego/internal/service/rides"
	"github.com/ridepool/ridego/internal/uow"
)

// txScope is the transactional view of the store. It satisfies both the
// booking and the ride lifecycle transaction ports.
type txScope struct {
	store *postgres.Store
	tx    postgres.DB
}

func (s *txScope) RideForUpdate(ctx context.Context, rideID int64) (*domain.Ride, error) {
	return s.store.Rides().With(s.tx).GetForUpdate(ctx, rideID)
}

func (s *txScope) SetAvailableSeats(ctx context.Context, rideID int64, available int) error {
	return s.store.Rides().With(s.tx).SetAvailableSeats(ctx, rideID, available)
}

func (s *txScope) UpdateRide(ctx context.Context, ride *domain.Ride) error {
	return s.store.Rides().With(s.tx).Update(ctx, ride)
}

func (s *txScope) InsertBooking(ctx context.Context, b *domain.Booking) error {
	return s.store.Bookings().With(s.tx).Create(ctx, b)
}

func (s *txScope) BookingForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.store.Bookings().With(s.tx).GetForUpdate(ctx, id)
}

func (s *txScope) SaveBookingSeats(ctx context.Context, id uuid.UUID, seats int, fareTotalCents int64) error {
	return s.store.Bookings().With(s.tx).SaveSeats(ctx, id, seats, fareTotalCents)
}

func (s *txScope) MarkBookingCancelled(ctx context.Context, id uuid.UUID) error {
	return s.store.Bookings().With(s.tx).MarkCancelled(ctx, id)
}

func (s *txScope) ActiveBookingsByUser(ctx context.Context, userID int64) ([]domain.UserBooking, error) {
	return s.store.Bookings().With(s.tx).ListActiveByUser(ctx, userID)
}

func (s *txScope) RidesByOwner(ctx context.Context, ownerID int64) ([]domain.Ride, error) {
	return s.store.Rides().With(s.tx).ListByOwner(ctx, ownerID)
}

func (s *txScope) HasConfirmedBookings(ctx context.Context, rideID int64) (bool, error) {
	return s.store.Bookings().With(s.tx).HasConfirmed(ctx, rideID)
}

func (s *txScope) DeleteBookingsForRide(ctx context.Context, rideID int64) error {
	return s.store.Bookings().With(s.tx).DeleteForRide(ctx, rideID)
}

func (s *txScope) DeleteRide(ctx context.Context, rideID int64) error {
	return s.store.Rides().With(s.tx).Delete(ctx, rideID)
}

func (s *txScope) DeleteUser(ctx context.Context, userID int64) error {
	return s.store.Users().With(s.tx).Delete(ctx, userID)
}

// BookingStorage adapts the store to the booking coordinator's port.
type BookingStorage struct {
	store *postgres.Store
	uow   *uow.UoW
}

var _ booking.Storage = (*BookingStorage)(nil)

func NewBookingStorage(store *postgres.Store) *BookingStorage {
	return &BookingStorage{store: store, uow: uow.NewUoW(store)}
}

func (s *BookingStorage) Atomic(ctx context.Context, fn func(ctx context.Context, tx booking.Tx, after func(uow.AfterCommit)) error) error {
	return s.uow.Do(ctx, func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error {
		return fn(ctx, &txScope{store: s.store, tx: tx}, after)
	})
}

func (s *BookingStorage) ActiveBookingsByUser(ctx context.Context, userID int64) ([]domain.UserBooking, error) {
	return s.store.Bookings().ListActiveByUser(ctx, userID)
}

// RideStorage adapts the store to the ride lifecycle port.
type RideStorage struct {
	store *postgres.Store
	uow   *uow.UoW
}

var _ rides.Storage = (*RideStorage)(nil)

func NewRideStorage(store *postgres.Store) *RideStorage {
	return &RideStorage{store: store, uow: uow.NewUoW(store)}
}

func (s *RideStorage) Atomic(ctx context.Context, fn func(ctx context.Context, tx rides.Tx, after func(uow.AfterCommit)) error) error {
	return s.uow.Do(ctx, func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error {
		return fn(ctx, &txScope{store: s.store, tx: tx}, after)
	})
}

func (s *RideStorage) CreateRide(ctx context.Context, ride *domain.Ride) (int64, error) {
	return s.store.Rides().Create(ctx, ride)
}

func (s *RideStorage) SearchRides(ctx context.Context, source, destination string) ([]domain.Ride, error) {
	return s.store.Rides().Search(ctx, source, destination)
}

func (s *RideStorage) RidesByOwner(ctx context.Context, ownerID int64) ([]domain.Ride, error) {
	return s.store.Rides().ListByOwner(ctx, ownerID)
}

// RideReader serves the uncached read side of the ride catalog.
type RideReader struct {
	store *postgres.Store
}

func NewRideReader(store *postgres.Store) *RideReader {
	return &RideReader{store: store}
}

func (r *RideReader) RideByID(ctx context.Context, id int64) (*domain.Ride, error) {
	return r.store.Rides().Get(ctx, id)
}

// UserStore adapts the store to the identity service port.
type UserStore struct {
	store *postgres.Store
}

func NewUserStore(store *postgres.Store) *UserStore {
	return &UserStore{store: store}
}

func (s *UserStore) CreateUser(ctx context.Context, u *domain.User) (int64, error) {
	return s.store.Users().Create(ctx, u)
}

func (s *UserStore) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.store.Users().GetByEmail(ctx, email)
}

func (s *UserStore) UserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.store.Users().GetByID(ctx, id)
}

func (s *UserStore) UpdateUser(ctx context.Context, u *domain.User) error {
	return s.store.Users().Update(ctx, u)
}

func (s *UserStore) SaveLicence(ctx context.Context, userID int64, licenceNo, licenceExp string) error {
	return s.store.Users().SaveLicence(ctx, userID, licenceNo, licenceExp)
}

func (s *UserStore) HasValidLicence(ctx context.Context, userID int64) (bool, error) {
	return s.store.Users().HasValidLicence(ctx, userID)
}
