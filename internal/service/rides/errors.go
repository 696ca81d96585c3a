package rides

import "errors"

var (
	ErrRideNotFound    = errors.New("ride not found")
	ErrNotRideOwner    = errors.New("ride belongs to another user")
	ErrRideHasBookings = errors.New("ride has active bookings")
	ErrLicenceRequired = errors.New("a valid driving licence is required")
	ErrInvalidRoute    = errors.New("source and destination are required")
	ErrInvalidCapacity = errors.New("seat capacity must be positive")
	ErrInvalidFare     = errors.New("fare must be positive")

	// ErrBelowBookedFloor surfaces corrupt seat counters. Capacity changes
	// require zero confirmed bookings, so a floor violation cannot come from
	// valid stored state.
	ErrBelowBookedFloor = errors.New("capacity cannot drop below booked seats")

	ErrStorageUnavailable = errors.New("storage unavailable")
)
