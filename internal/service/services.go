package service

import (
	"log/slog"
	"time"

	"github.com/ridepool/ridego/internal/auth"
	redisx "github.com/ridepool/ridego/internal/redis"
	"github.com/ridepool/ridego/internal/repository/postgres"
	redisrepo "github.com/ridepool/ridego/internal/repository/redis"
	"github.com/ridepool/ridego/internal/service/booking"
	"github.com/ridepool/ridego/internal/service/query"
	"github.com/ridepool/ridego/internal/service/rides"
	"github.com/ridepool/ridego/internal/service/users"
	"github.com/ridepool/ridego/internal/storage"
)

// Services bundles the application services behind one constructor.
type Services struct {
	Users   *users.Service
	Rides   *rides.Service
	Booking *booking.Service
	Query   *query.Service
}

type Deps struct {
	Store        *postgres.Store
	Cache        *redisrepo.Cache
	PubSub       *redisx.RideEventsPubSub
	Tokens       *auth.JWTService
	Logger       *slog.Logger
	CancelWindow time.Duration
}

func NewServices(d Deps) *Services {
	usersSvc := users.New(storage.NewUserStore(d.Store), d.Tokens)

	return &Services{
		Users: usersSvc,
		Rides: rides.New(storage.NewRideStorage(d.Store), usersSvc, d.Cache, d.PubSub, d.Logger),
		Booking: booking.New(
			storage.NewBookingStorage(d.Store),
			d.Cache,
			d.PubSub,
			d.Logger,
			booking.Config{CancelWindow: d.CancelWindow},
		),
		Query: query.New(storage.NewRideReader(d.Store), d.Cache),
	}
}
