package booking

import "errors"

var (
	ErrRideNotFound      = errors.New("ride not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInsufficientSeats = errors.New("not enough seats available")
	ErrInvalidSeatCount  = errors.New("seat count must be positive")
	ErrAlreadyCancelled  = errors.New("booking already cancelled")
	ErrWindowExpired     = errors.New("cancellation window expired")

	// ErrSeatAccounting wraps ledger violations (capacity overflow, booked
	// floor). Seeing it means a caller double-released or corrupted a
	// counter; it is logged as a bug signal and the operation is rejected.
	ErrSeatAccounting = errors.New("seat accounting violation")

	ErrStorageUnavailable = errors.New("storage unavailable")
)
