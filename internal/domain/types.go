package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"phone"`
	LicenceNo    string    `json:"licence_no,omitempty"`
	LicenceExp   string    `json:"licence_exp,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Ride struct {
	ID               int64     `json:"id"`
	Source           string    `json:"source"`
	Destination      string    `json:"destination"`
	TotalSeats       int       `json:"total_seats"`
	AvailableSeats   int       `json:"available_seats"`
	FarePerSeatCents int64     `json:"fare_per_seat_cents"`
	DepartAt         time.Time `json:"depart_at"`
	OwnerID          int64     `json:"owner_id"`
	CarBrand         string    `json:"car_brand,omitempty"`
	CarModel         string    `json:"car_model,omitempty"`
	CarPlate         string    `json:"car_plate,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Booking struct {
	ID             uuid.UUID     `json:"id"`
	RideID         int64         `json:"ride_id"`
	UserID         int64         `json:"user_id"`
	Seats          int           `json:"seats"`
	FareTotalCents int64         `json:"fare_total_cents"`
	Status         BookingStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}

// UserBooking is a booking joined with the route of its ride, used for
// per-user listings.
type UserBooking struct {
	Booking
	RideSource      string `json:"ride_source"`
	RideDestination string `json:"ride_destination"`
}

type SeatCounts struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Booked    int `json:"booked"`
}

// Counts derives the seat counters from a ride row.
func (r *Ride) Counts() SeatCounts {
	return SeatCounts{
		Total:     r.TotalSeats,
		Available: r.AvailableSeats,
		Booked:    r.TotalSeats - r.AvailableSeats,
	}
}
