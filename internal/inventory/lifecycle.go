package inventory

import (
	"errors"
	"time"

	"github.com/ridepool/ridego/internal/domain"
)

// CancelWindow is how long after creation a booking may be self-cancelled.
const CancelWindow = 10 * time.Minute

var (
	ErrAlreadyCancelled          = errors.New("booking is already cancelled")
	ErrCancellationWindowExpired = errors.New("cancellation window expired")
)

// Cancel transitions a booking to CANCELLED. The transition is valid only
// from CONFIRMED and only while now is within the window of the booking's
// creation time; a zero window means CancelWindow. CANCELLED is terminal, so
// a second call fails with ErrAlreadyCancelled and changes nothing.
//
// The caller is responsible for releasing the booking's seats back to the
// ride ledger in the same transaction.
func Cancel(b *domain.Booking, now time.Time, window time.Duration) error {
	if b.Status == domain.BookingCancelled {
		return ErrAlreadyCancelled
	}

	if window <= 0 {
		window = CancelWindow
	}

	if now.Sub(b.CreatedAt) > window {
		return ErrCancellationWindowExpired
	}

	b.Status = domain.BookingCancelled

	return nil
}

// ForceCancel is the administrative transition used by the account-deletion
// cascade. It ignores the cancellation window but keeps the idempotency
// guard.
func ForceCancel(b *domain.Booking) error {
	if b.Status == domain.BookingCancelled {
		return ErrAlreadyCancelled
	}

	b.Status = domain.BookingCancelled

	return nil
}

// ApplySeatChange rewrites a CONFIRMED booking's seat count and recomputes
// the fare total from scratch (seats times the ride's per-seat fare), never
// adjusting it incrementally. The caller resolves the seat delta against the
// ledger first.
func ApplySeatChange(b *domain.Booking, newSeats int, farePerSeatCents int64) error {
	if b.Status != domain.BookingConfirmed {
		return ErrAlreadyCancelled
	}

	if newSeats <= 0 {
		return ErrInvalidSeatCount
	}

	b.Seats = newSeats
	b.FareTotalCents = int64(newSeats) * farePerSeatCents

	return nil
}
