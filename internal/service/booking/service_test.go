package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ridepool/ridego/internal/domain"
	"github.com/ridepool/ridego/internal/repository"
	"github.com/ridepool/ridego/internal/uow"
)

// memStorage is an in-memory Storage. Atomic serializes units behind one
// mutex and restores a snapshot when the unit fails, mirroring the
// all-or-nothing contract of the real store.
type memStorage struct {
	mu       sync.Mutex
	rides    map[int64]domain.Ride
	bookings map[uuid.UUID]domain.Booking
	users    map[int64]struct{}
}

func newMemStorage() *memStorage {
	return &memStorage{
		rides:    make(map[int64]domain.Ride),
		bookings: make(map[uuid.UUID]domain.Booking),
		users:    make(map[int64]struct{}),
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
	users := make(map[int64]struct{}, len(m.users))
	for k := range m.users {
		users[k] = struct{}{}
	}

	var hooks []uow.AfterCommit
	after := func(h uow.AfterCommit) { hooks = append(hooks, h) }

	if err := fn(ctx, memTx{m}, after); err != nil {
		m.rides = rides
		m.bookings = bookings
		m.users = users
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

func (m *memStorage) ActiveBookingsByUser(ctx context.Context, userID int64) ([]domain.UserBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.ActiveBookingsByUser(ctx, userID)
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

func (t memTx) SetAvailableSeats(_ context.Context, rideID int64, available int) error {
	r, ok := t.s.rides[rideID]
	if !ok {
		return repository.ErrNotFound
	}
	r.AvailableSeats = available
	t.s.rides[rideID] = r
	return nil
}

func (t memTx) InsertBooking(_ context.Context, b *domain.Booking) error {
	t.s.bookings[b.ID] = *b
	return nil
}

func (t memTx) BookingForUpdate(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, ok := t.s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (t memTx) SaveBookingSeats(_ context.Context, id uuid.UUID, seats int, fareTotalCents int64) error {
	b, ok := t.s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Seats = seats
	b.FareTotalCents = fareTotalCents
	t.s.bookings[id] = b
	return nil
}

func (t memTx) MarkBookingCancelled(_ context.Context, id uuid.UUID) error {
	b, ok := t.s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = domain.BookingCancelled
	t.s.bookings[id] = b
	return nil
}

func (t memTx) ActiveBookingsByUser(_ context.Context, userID int64) ([]domain.UserBooking, error) {
	var out []domain.UserBooking
	for _, b := range t.s.bookings {
		if b.UserID != userID || b.Status != domain.BookingConfirmed {
			continue
		}
		ub := domain.UserBooking{Booking: b}
		if r, ok := t.s.rides[b.RideID]; ok {
			ub.RideSource = r.Source
			ub.RideDestination = r.Destination
		}
		out = append(out, ub)
	}
	return out, nil
}

func (t memTx) RidesByOwner(_ context.Context, ownerID int64) ([]domain.Ride, error) {
	var out []domain.Ride
	for _, r := range t.s.rides {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
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

func (t memTx) DeleteUser(_ context.Context, userID int64) error {
	if _, ok := t.s.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(t.s.users, userID)
	return nil
}

func newTestService(store *memStorage) *Service {
	return New(store, nil, nil, nil, Config{})
}

func seedRide(store *memStorage, id int64, seats int, ownerID int64) {
	store.rides[id] = domain.Ride{
		ID:               id,
		Source:           "Pune",
		Destination:      "Mumbai",
		TotalSeats:       seats,
		AvailableSeats:   seats,
		FarePerSeatCents: 25000,
		OwnerID:          ownerID,
	}
}

func TestBookAndCancelFlow(t *testing.T) {
	store := newMemStorage()
	seedRide(store, 1, 4, 99)
	svc := newTestService(store)
	ctx := context.Background()

	b1, err := svc.Book(ctx, 10, 1, 2)
	if err != nil {
		t.Fatalf("book 2 seats: %v", err)
	}
	if b1.FareTotalCents != 50000 {
		t.Fatalf("fare = %d, want 50000", b1.FareTotalCents)
	}

	if _, err := svc.Book(ctx, 11, 1, 1); err != nil {
		t.Fatalf("book 1 seat: %v", err)
	}

	if got := store.rides[1].AvailableSeats; got != 1 {
		t.Fatalf("available after two bookings = %d, want 1", got)
	}

	if _, err := svc.Book(ctx, 12, 1, 5); !errors.Is(err, ErrInsufficientSeats) {
		t.Fatalf("book 5 seats: err = %v, want ErrInsufficientSeats", err)
	}
	if got := store.rides[1].AvailableSeats; got != 1 {
		t.Fatalf("available after rejected booking = %d, want 1", got)
	}

	if _, err := svc.Cancel(ctx, 10, b1.ID, b1.CreatedAt.Add(5*time.Minute)); err != nil {
		t.Fatalf("cancel within window: %v", err)
	}
	if got := store.rides[1].AvailableSeats; got != 3 {
		t.Fatalf("available after cancel = %d, want 3", got)
	}
	if got := store.bookings[b1.ID].Status; got != domain.BookingCancelled {
		t.Fatalf("status after cancel = %q, want CANCELLED", got)
	}
}

func TestBookRejectsBadInput(t *testing.T) {
	store := newMemStorage()
	seedRide(store, 1, 4, 99)
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Book(ctx, 10, 404, 1); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("missing ride: err = %v, want ErrRideNotFound", err)
	}
	if _, err := svc.Book(ctx, 10, 1, 0); !errors.Is(err, ErrInvalidSeatCount) {
		t.Fatalf("zero seats: err = %v, want ErrInvalidSeatCount", err)
	}
	if _, err := svc.Book(ctx, 10, 1, -2); !errors.Is(err, ErrInvalidSeatCount) {
		t.Fatalf("negative seats: err = %v, want ErrInvalidSeatCount", err)
	}
}

func TestConcurrentBookingNeverOversells(t *testing.T) {
	store := newMemStorage()
	seedRide(store, 1, 4, 99)
	svc := newTestService(store)
	ctx := context.Background()

	const attempts = 20

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := range attempts {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.Book(ctx, userID, 1, 1)
			results <- err
		}(int64(100 + i))
	}

	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientSeats):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if ok != 4 || rejected != attempts-4 {
		t.Fatalf("ok = %d rejected = %d, want 4 and %d", ok, rejected, attempts-4)
	}
	if got := store.rides[1].AvailableSeats; got != 0 {
		t.Fatalf("available = %d, want 0", got)
	}
}

func TestCancelIdempotenceAndWindow(t *testing.T) {
	store := newMemStorage()
	seedRide(store, 1, 4, 99)
	svc := newTestService(store)
	ctx := context.Background()

	b, err := svc.Book(ctx, 10, 1, 2)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if _, err := svc.Cancel(ctx, 10, b.ID, b.CreatedAt.Add(time.Minute)); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := svc.Cancel(ctx, 10, b.ID, b.CreatedAt.Add(2*time.Minute)); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("second cancel: err = %v, want ErrAlreadyCancelled", err)
	}
	if got := store.rides[1].AvailableSeats; got != 4 {
		t.Fatalf("seats released twice: available = %d, want 4", got)
	}

	late, err := svc.Book(ctx, 10, 1, 1)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Cancel(ctx, 10, late.ID, late.CreatedAt.Add(10*time.Minute+time.Second)); !errors.Is(err, ErrWindowExpired) {
		t.Fatalf("late cancel: err = %v, want ErrWindowExpired", err)
	}
	if got := store.bookings[late.ID].Status; got != domain.BookingConfirmed {
		t.Fatalf("late cancel mutated status to %q", got)
	}
	if got := store.rides[1].AvailableSeats; got != 3 {
		t.Fatalf("late cancel released seats: available = %d, want 3", got)
	}

	// Exactly at the boundary still goes through.
	edge, err := svc.Book(ctx, 11, 1, 1)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Cancel(ctx, 11, edge.ID, edge.CreatedAt.Add(10*time.Minute)); err != nil {
		t.Fatalf("boundary cancel: %v", err)
	}
}

func TestCancelForeignBooking(t *testing.T) {
	store := newMemStorage()
	seedRide(store, 1, 4, 99)
	svc := newTestService(store)
	ctx := context.Background()

	b, err := svc.Book(ctx, 10, 1, 1)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if _, err := svc.Cancel(ctx, 77, b.ID, b.CreatedAt); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("foreign cancel: err = %v, want ErrBookingNotFound", err)
	}
	if _, err := svc.Cancel(ctx, 10, uuid.New(), time.Now()); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("unknown id: err = %v, want ErrBookingNotFound", err)
	}
}

func TestModifySeats(t *testing.T) {
	store := newMemStorage()
	seedRide(store, 1, 4, 99)
	svc := newTestService(store)
	ctx := context.Background()

	b, err := svc.Book(ctx, 10, 1, 2)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	grown, err := svc.ModifySeats(ctx, 10, b.ID, 4)
	if err != nil {
		t.Fatalf("grow to 4: %v", err)
	}
	if grown.Seats != 4 || grown.FareTotalCents != 100000 {
		t.Fatalf("grown = %d seats fare %d, want 4 and 100000", grown.Seats, grown.FareTotalCents)
	}
	if got := store.rides[1].AvailableSeats; got != 0 {
		t.Fatalf("available after grow = %d, want 0", got)
	}

	shrunk, err := svc.ModifySeats(ctx, 10, b.ID, 1)
	if err != nil {
		t.Fatalf("shrink to 1: %v", err)
	}
	if shrunk.Seats != 1 || shrunk.FareTotalCents != 25000 {
		t.Fatalf("shrunk = %d seats fare %d, want 1 and 25000", shrunk.Seats, shrunk.FareTotalCents)
	}
	if got := store.rides[1].AvailableSeats; got != 3 {
		t.Fatalf("available after shrink = %d, want 3", got)
	}

	same, err := svc.ModifySeats(ctx, 10, b.ID, 1)
	if err != nil {
		t.Fatalf("no-op modify: %v", err)
	}
	if same.Seats != 1 {
		t.Fatalf("no-op changed seats to %d", same.Seats)
	}
}

func TestModifySeatsFailureLeavesStateUntouched(t *testing.T) {
	store := newMemStorage()
	seedRide(store, 1, 4, 99)
	svc := newTestService(store)
	ctx := context.Background()

	b, err := svc.Book(ctx, 10, 1, 2)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Book(ctx, 11, 1, 1); err != nil {
		t.Fatalf("book: %v", err)
	}

	// Growing 2 -> 4 needs 2 more seats; only 1 remains.
	if _, err := svc.ModifySeats(ctx, 10, b.ID, 4); !errors.Is(err, ErrInsufficientSeats) {
		t.Fatalf("over-grow: err = %v, want ErrInsufficientSeats", err)
	}
	if got := store.bookings[b.ID].Seats; got != 2 {
		t.Fatalf("booking seats after failed grow = %d, want 2", got)
	}
	if got := store.rides[1].AvailableSeats; got != 1 {
		t.Fatalf("available after failed grow = %d, want 1", got)
	}
}

func TestModifySeatsCancelledBooking(t *testing.T) {
	store := newMemStorage()
	seedRide(store, 1, 4, 99)
	svc := newTestService(store)
	ctx := context.Background()

	b, err := svc.Book(ctx, 10, 1, 2)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Cancel(ctx, 10, b.ID, b.CreatedAt); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := svc.ModifySeats(ctx, 10, b.ID, 3); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("modify cancelled: err = %v, want ErrAlreadyCancelled", err)
	}
}

func TestUserBookings(t *testing.T) {
	store := newMemStorage()
	seedRide(store, 1, 4, 99)
	seedRide(store, 2, 3, 99)
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Book(ctx, 10, 1, 1); err != nil {
		t.Fatalf("book: %v", err)
	}
	b2, err := svc.Book(ctx, 10, 2, 2)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Book(ctx, 11, 1, 1); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Cancel(ctx, 10, b2.ID, b2.CreatedAt); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := svc.UserBookings(ctx, 10)
	if err != nil {
		t.Fatalf("user bookings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (cancelled bookings excluded)", len(got))
	}
	if got[0].RideSource != "Pune" || got[0].RideDestination != "Mumbai" {
		t.Fatalf("route = %q -> %q", got[0].RideSource, got[0].RideDestination)
	}
}

func TestDeleteAccountCascade(t *testing.T) {
	store := newMemStorage()
	store.users[10] = struct{}{}
	seedRide(store, 1, 4, 99) // someone else's ride, user 10 books on it
	seedRide(store, 2, 3, 10) // owned, carries another user's live booking
	seedRide(store, 3, 2, 10) // owned, empty
	svc := newTestService(store)
	ctx := context.Background()

	ownBooking, err := svc.Book(ctx, 10, 1, 3)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	// Booked twelve minutes ago, past the window; the cascade still cancels.
	staleID := ownBooking.ID
	st := store.bookings[staleID]
	st.CreatedAt = time.Now().Add(-12 * time.Minute)
	store.bookings[staleID] = st

	if _, err := svc.Book(ctx, 11, 2, 1); err != nil {
		t.Fatalf("book: %v", err)
	}

	if err := svc.DeleteAccount(ctx, 10); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, ok := store.users[10]; ok {
		t.Fatal("user survived deletion")
	}
	if got := store.bookings[staleID].Status; got != domain.BookingCancelled {
		t.Fatalf("user's booking status = %q, want CANCELLED", got)
	}
	if got := store.rides[1].AvailableSeats; got != 4 {
		t.Fatalf("seats not released on ride 1: available = %d, want 4", got)
	}
	if _, ok := store.rides[2]; !ok {
		t.Fatal("ride with a live foreign booking was deleted")
	}
	if _, ok := store.rides[3]; ok {
		t.Fatal("empty owned ride survived deletion")
	}
}

func TestDeleteAccountCancelsBookingOnMissingRide(t *testing.T) {
	store := newMemStorage()
	store.users[10] = struct{}{}
	svc := newTestService(store)
	ctx := context.Background()

	// the booking's ride row is already gone; no seats to release
	orphanID := uuid.New()
	store.bookings[orphanID] = domain.Booking{
		ID: orphanID, RideID: 77, UserID: 10, Seats: 2,
		Status: domain.BookingConfirmed, CreatedAt: time.Now(),
	}

	if err := svc.DeleteAccount(ctx, 10); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, ok := store.users[10]; ok {
		t.Fatal("user survived deletion")
	}
	if got := store.bookings[orphanID].Status; got != domain.BookingCancelled {
		t.Fatalf("booking without a ride: status = %q, want CANCELLED", got)
	}
}

func TestDeleteAccountUnknownUser(t *testing.T) {
	store := newMemStorage()
	svc := newTestService(store)

	if err := svc.DeleteAccount(context.Background(), 404); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}
