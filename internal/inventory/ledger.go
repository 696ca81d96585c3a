// Package inventory implements the seat-inventory ledger and the booking
// state machine. It is the only code allowed to change a ride's available-seat
// counter or a booking's status; services apply its results inside a single
// transaction over the ride's consistency domain.
package inventory

import (
	"errors"

	"github.com/ridepool/ridego/internal/domain"
)

var (
	ErrInvalidSeatCount  = errors.New("seat count must be positive")
	ErrInsufficientSeats = errors.New("not enough seats available")

	// ErrCapacityOverflow and ErrBelowBookedFloor signal bookkeeping bugs in
	// the caller rather than user mistakes. They are surfaced as rejected
	// operations, never clamped.
	ErrCapacityOverflow = errors.New("release exceeds ride capacity")
	ErrBelowBookedFloor = errors.New("new capacity is below booked seat count")
)

// Reserve takes n seats from the ride's pool. On failure the ride is left
// unchanged.
func Reserve(r *domain.Ride, n int) error {
	if n <= 0 {
		return ErrInvalidSeatCount
	}

	if r.AvailableSeats < n {
		return ErrInsufficientSeats
	}

	r.AvailableSeats -= n

	return nil
}

// Release returns n seats to the ride's pool. Releasing past total capacity
// means an upstream caller double-released; the ledger rejects it instead of
// clamping.
func Release(r *domain.Ride, n int) error {
	if n <= 0 {
		return ErrInvalidSeatCount
	}

	if r.AvailableSeats+n > r.TotalSeats {
		return ErrCapacityOverflow
	}

	r.AvailableSeats += n

	return nil
}

// AdjustCapacity rewrites the ride's total seat count, recomputing the
// available counter so that already-booked seats stay booked. Shrinking below
// the booked count fails with ErrBelowBookedFloor.
func AdjustCapacity(r *domain.Ride, newTotal int) error {
	if newTotal <= 0 {
		return ErrInvalidSeatCount
	}

	booked := r.TotalSeats - r.AvailableSeats
	if newTotal < booked {
		return ErrBelowBookedFloor
	}

	r.TotalSeats = newTotal
	r.AvailableSeats = newTotal - booked

	return nil
}
