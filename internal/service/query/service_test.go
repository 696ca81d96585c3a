package query

import (
	"context"
	"errors"
	"testing"

	"github.com/ridepool/ridego/internal/domain"
	"github.com/ridepool/ridego/internal/repository"
)

type stubReader struct {
	rides map[int64]domain.Ride
	err   error
}

func (r *stubReader) RideByID(_ context.Context, id int64) (*domain.Ride, error) {
	if r.err != nil {
		return nil, r.err
	}
	ride, ok := r.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ride, nil
}

func TestRide(t *testing.T) {
	reader := &stubReader{rides: map[int64]domain.Ride{
		1: {ID: 1, Source: "Pune", Destination: "Mumbai", TotalSeats: 4, AvailableSeats: 3},
	}}
	svc := New(reader, nil)

	ride, err := svc.Ride(context.Background(), 1)
	if err != nil {
		t.Fatalf("ride: %v", err)
	}
	if ride.Source != "Pune" {
		t.Fatalf("source = %q, want Pune", ride.Source)
	}

	if _, err := svc.Ride(context.Background(), 404); !errors.Is(err, ErrRideNotFound) {
		t.Fatalf("missing ride: err = %v, want ErrRideNotFound", err)
	}
}

func TestAvailability(t *testing.T) {
	reader := &stubReader{rides: map[int64]domain.Ride{
		1: {ID: 1, TotalSeats: 4, AvailableSeats: 1},
	}}
	svc := New(reader, nil)

	counts, err := svc.Availability(context.Background(), 1)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if counts.Total != 4 || counts.Available != 1 || counts.Booked != 3 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestStorageUnavailable(t *testing.T) {
	reader := &stubReader{err: repository.ErrUnavailable}
	svc := New(reader, nil)

	if _, err := svc.Ride(context.Background(), 1); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}
