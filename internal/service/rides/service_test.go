package rides

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ridepool/ridego/internal/domain"
	"github.com/ridepool/ridego/internal/repository"
	"github.com/ridepool/ridego/internal/uow"
)

type memStorage struct {
	mu       sync.Mutex
	nextID   int64
	rides    map[int64]domain.Ride
	bookings map[uuid.UUID]domain.Booking
	licensed map[int64]bool
}

func newMemStorage() *memStorage {
	return &memStorage{
		nextID:   1,
		rides:    make(map[int64]domain.Ride),
		bookings: make(map[uuid.UUID]domain.Booking),
		licensed: make(map[int64]bool),
	}
}

func (m *memStorage) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx, after func(uow.AfterCommit)) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rides := make(map[int64]domain.Ride, len(m.rides))
	for k, v := range m.rides {
		rides[k] = v
	}
	bookings := make(map[uuid.UUID]domain.Booking, len(m.bookings))
	for k, v := range m.bookings {
		bookings[k] = v
	}

	var hooks []uow.AfterCommit
	after := func(h uow.AfterCommit) { hooks = append(hooks, h) }

	if err := fn(ctx, memTx{m}, after); err != nil {
		m.rides = rides
		m.bookings = bookings
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

func (m *memStorage) CreateRide(_ context.Context, ride *domain.Ride) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	r := *ride
	r.ID = id
	m.rides[id] = r

	return id, nil
}

func (m *memStorage) SearchRides(_ context.Context, source, destination string) ([]domain.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Ride
	for _, r := range m.rides {
		if r.AvailableSeats <= 0 {
			continue
		}
		if source != "" && r.Source != source {
			continue
		}
		if destination != "" && r.Destination != destination {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStorage) RidesByOwner(_ context.Context, ownerID int64) ([]domain.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Ride
	for _, r := range m.rides {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStorage) HasValidLicence(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.licensed[userID], nil
}

type memTx struct {
	s *memStorage
}

func (t memTx) RideForUpdate(_ context.Context, rideID int64) (*domain.Ride, error) {
	r, ok := t.s.rides[rideID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (t memTx) UpdateRide(_ context.Context, ride *domain.Ride) error {
	if _, ok := t.s.rides[ride.ID]; !ok {
		return repository.ErrNotFound
	}
	t.s.rides[ride.ID] = *ride
	return nil
}

func (t memTx) HasConfirmedBookings(_ context.Context, rideID int64) (bool, error) {
	for _, b := range t.s.bookings {
		if b.RideID == rideID && b.Status == domain.BookingConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (t memTx) DeleteBookingsForRide(_ context.Context, rideID int64) error {
	for id, b := range t.s.bookings {
		if b.RideID == rideID {
			delete(t.s.bookings, id)
		}
	}
	return nil
}

func (t memTx) DeleteRide(_ context.Context, rideID int64) error {
	delete(t.s.rides, rideID)
	return nil
}

func newTestService(store *memStorage) *Service {
	return New(store, store, nil, nil, nil)
}

func validParams() CreateParams {
	return CreateParams{
		Source:           "Pune",
		Destination:      "Mumbai",
		TotalSeats:       4,
		FarePerSeatCents: 25000,
		CarBrand:         "Tata",
		CarModel:         "Nexon",
		CarPlate:         "MH12AB1234",
	}
}

func TestCreateRide(t *testing.T) {
	store := newMemStorage()
	store.licensed[1] = true
	svc := newTestService(store)
	ctx := context.Background()

	ride, err := svc.Create(ctx, 1, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ride.ID == 0 {
		t.Fatal("ride id not assigned")
	}
	if ride.AvailableSeats != ride.TotalSeats {
		t.Fatalf("available = %d, want %d (full pool at creation)", ride.AvailableSeats, ride.TotalSeats)
	}
}

func TestCreateRideValidation(t *testing.T) {
	store := newMemStorage()
	store.licensed[1] = true
	svc := newTestService(store)
	ctx := context.Background()

	p := validParams()
	p.TotalSeats = 0
	if _, err := svc.Create(ctx, 1, p); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("zero seats: err = %v, want ErrInvalidCapacity", err)
	}

	p = validParams()
	p.FarePerSeatCents = -100
	if _, err := svc.Create(ctx, 1, p); !errors.Is(err, ErrInvalidFare) {
		t.Fatalf("negative fare: err = %v, want ErrInvalidFare", err)
	}

	p = validParams()
	p.Destination = "  "
	if _, err := svc.Create(ctx, 1, p); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("blank destination: err = %v, want ErrInvalidRoute", err)
	}

	if _, err := svc.Create(ctx, 2, validParams()); !errors.Is(err, ErrLicenceRequired) {
		t.Fatalf("unlicensed owner: err = %v, want ErrLicenceRequired", err)
	}
}

func TestUpdateRide(t *testing.T) {
	store := newMemStorage()
	store.licensed[1] = true
	svc := newTestService(store)
	ctx := context.Background()

	ride, err := svc.Create(ctx, 1, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	dest := "Nashik"
	seats := 6
	got, err := svc.Update(ctx, 1, ride.ID, UpdateParams{Destination: &dest, TotalSeats: &seats})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Destination != "Nashik" {
		t.Fatalf("destination = %q, want Nashik", got.Destination)
	}
	if got.TotalSeats != 6 || got.AvailableSeats != 6 {
		t.Fatalf("seats = %d/%d, want 6/6", got.AvailableSeats, got.TotalSeats)
	}

	// Untouched fields keep their values.
	if got.Source != "Pune" || got.FarePerSeatCents != 25000 {
		t.Fatalf("unrelated fields changed: %q fare %d", got.Source, got.FarePerSeatCents)
	}
}

func TestUpdateRideGuards(t *testing.T) {
	store := newMemStorage()
	store.licensed[1] = true
	svc := newTestService(store)
	ctx := context.Background()

	ride, err := svc.Create(ctx, 1, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	seats := 2
	if _, err := svc.Update(ctx, 2, ride.ID, UpdateParams{TotalSeats: &seats}); !errors.Is(err, ErrNotRideOwner) {
		t.Fatalf("foreign update: err = %v, want ErrNotRideOwner", err)
	}
	if _, err := svc.Update(ctx, 1, 404, UpdateParams{TotalSeats: &seats}); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("missing ride: err = %v, want ErrRideNotFound", err)
	}

	store.bookings[uuid.New()] = domain.Booking{
		ID: uuid.New(), RideID: ride.ID, UserID: 7, Seats: 1,
		Status: domain.BookingConfirmed,
	}
	if _, err := svc.Update(ctx, 1, ride.ID, UpdateParams{TotalSeats: &seats}); !errors.Is(err, ErrRideHasBookings) {
		t.Fatalf("update with live booking: err = %v, want ErrRideHasBookings", err)
	}
}

func TestUpdateRideAllowedWithCancelledHistory(t *testing.T) {
	store := newMemStorage()
	store.licensed[1] = true
	svc := newTestService(store)
	ctx := context.Background()

	ride, err := svc.Create(ctx, 1, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	store.bookings[uuid.New()] = domain.Booking{
		ID: uuid.New(), RideID: ride.ID, UserID: 7, Seats: 1,
		Status: domain.BookingCancelled,
	}

	fare := int64(30000)
	if _, err := svc.Update(ctx, 1, ride.ID, UpdateParams{FarePerSeatCents: &fare}); err != nil {
		t.Fatalf("update with cancelled history only: %v", err)
	}
}

func TestDeleteRide(t *testing.T) {
	store := newMemStorage()
	store.licensed[1] = true
	svc := newTestService(store)
	ctx := context.Background()

	ride, err := svc.Create(ctx, 1, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	liveID := uuid.New()
	store.bookings[liveID] = domain.Booking{
		ID: liveID, RideID: ride.ID, UserID: 7, Seats: 1,
		Status: domain.BookingConfirmed,
	}

	if err := svc.Delete(ctx, 1, ride.ID); !errors.Is(err, ErrRideHasBookings) {
		t.Fatalf("delete with live booking: err = %v, want ErrRideHasBookings", err)
	}

	b := store.bookings[liveID]
	b.Status = domain.BookingCancelled
	store.bookings[liveID] = b

	if err := svc.Delete(ctx, 1, ride.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.rides[ride.ID]; ok {
		t.Fatal("ride survived deletion")
	}
	if len(store.bookings) != 0 {
		t.Fatal("cancelled history survived ride deletion")
	}
}

func TestSearchExcludesFullRides(t *testing.T) {
	store := newMemStorage()
	store.licensed[1] = true
	svc := newTestService(store)
	ctx := context.Background()

	open, err := svc.Create(ctx, 1, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	full, err := svc.Create(ctx, 1, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r := store.rides[full.ID]
	r.AvailableSeats = 0
	store.rides[full.ID] = r

	got, err := svc.Search(ctx, "", "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != open.ID {
		t.Fatalf("search returned %d rides, want only the open one", len(got))
	}
}

func TestUpdateCorruptCountersSurfaceAsBug(t *testing.T) {
	store := newMemStorage()
	svc := newTestService(store)
	ctx := context.Background()

	store.licensed[1] = true
	// counters claim 3 booked seats while no confirmed booking exists
	store.rides[9] = domain.Ride{ID: 9, OwnerID: 1, TotalSeats: 4, AvailableSeats: 1}

	seats := 2
	_, err := svc.Update(ctx, 1, 9, UpdateParams{TotalSeats: &seats})
	if !errors.Is(err, ErrBelowBookedFloor) {
		t.Fatalf("err = %v, want ErrBelowBookedFloor", err)
	}

	r := store.rides[9]
	if r.TotalSeats != 4 || r.AvailableSeats != 1 {
		t.Fatalf("counters changed after failed update: %+v", r)
	}
}
