package httpgin

import "time"

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

type UpdateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

type SaveLicenceRequest struct {
	LicenceNo  string `json:"licence_no" binding:"required"`
	LicenceExp string `json:"licence_exp" binding:"required"`
}

type CreateRideRequest struct {
	Source           string `json:"source" binding:"required"`
	Destination      string `json:"destination" binding:"required"`
	TotalSeats       int    `json:"total_seats" binding:"required,gt=0"`
	FarePerSeatCents int64  `json:"fare_per_seat_cents" binding:"required,gt=0"`
	DepartAt         string `json:"depart_at" binding:"required"`
	CarBrand         string `json:"car_brand"`
	CarModel         string `json:"car_model"`
	CarPlate         string `json:"car_plate"`
}

type UpdateRideRequest struct {
	Source           *string `json:"source"`
	Destination      *string `json:"destination"`
	TotalSeats       *int    `json:"total_seats"`
	FarePerSeatCents *int64  `json:"fare_per_seat_cents"`
	DepartAt         *string `json:"depart_at"`
	CarBrand         *string `json:"car_brand"`
	CarModel         *string `json:"car_model"`
	CarPlate         *string `json:"car_plate"`
}

type CreateBookingRequest struct {
	RideID int64 `json:"ride_id" binding:"required"`
	Seats  int   `json:"seats" binding:"required,gt=0"`
}

type ModifyBookingRequest struct {
	Seats int `json:"seats" binding:"required,gt=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
