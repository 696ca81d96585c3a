package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ridepool/ridego/internal/auth"
	redisrepo "github.com/ridepool/ridego/internal/repository/redis"
	"github.com/ridepool/ridego/internal/service"
	"github.com/ridepool/ridego/internal/service/booking"
	"github.com/ridepool/ridego/internal/service/query"
	"github.com/ridepool/ridego/internal/service/rides"
	"github.com/ridepool/ridego/internal/service/users"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
	tokens *auth.JWTService,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health + metrics
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public API
	r.POST("/auth/register", handleRegister(svcs))
	r.POST("/auth/login", handleLogin(svcs))

	r.GET("/rides", handleSearchRides(svcs))
	r.GET("/rides/:id", handleGetRide(svcs))
	r.GET("/rides/:id/availability", handleGetAvailability(svcs))

	// Authenticated API
	authed := r.Group("/", AuthRequired(tokens))
	{
		authed.POST("/rides", handleCreateRide(svcs))
		authed.GET("/rides/mine", handleMyRides(svcs))
		authed.PATCH("/rides/:id", handleUpdateRide(svcs))
		authed.DELETE("/rides/:id", handleDeleteRide(svcs))

		authed.POST("/bookings", handleCreateBooking(svcs, idem, limiter))
		authed.GET("/bookings", handleMyBookings(svcs))
		authed.PATCH("/bookings/:id", handleModifyBooking(svcs))
		authed.POST("/bookings/:id/cancel", handleCancelBooking(svcs))

		authed.PATCH("/users/me", handleUpdateProfile(svcs))
		authed.PATCH("/users/me/licence", handleSaveLicence(svcs))
		authed.DELETE("/users/me", handleDeleteAccount(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Register user
// @Param    req body  RegisterRequest true "payload"
// @Success  201 {object} domain.User
// @Failure  409 {object} ErrorResponse "email taken"
// @Router   /auth/register [post]
func handleRegister(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		u, err := svcs.Users.Register(c.Request.Context(), users.RegisterParams{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Phone:    req.Phone,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

// @Summary  Login
// @Param    req body  LoginRequest true "payload"
// @Success  200 {object} LoginResponse
// @Failure  401 {object} ErrorResponse
// @Router   /auth/login [post]
func handleLogin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		token, u, err := svcs.Users.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, LoginResponse{Token: token, UserID: u.ID})
	}
}

// @Summary  Search open rides
// @Param    source       query  string  false "substring match"
// @Param    destination  query  string  false "substring match"
// @Success  200 {array} domain.Ride
// @Router   /rides [get]
func handleSearchRides(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		found, err := svcs.Rides.Search(
			c.Request.Context(),
			strings.TrimSpace(c.Query("source")),
			strings.TrimSpace(c.Query("destination")),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, found)
	}
}

// @Summary  Get ride
// @Param    id  path  int  true  "Ride ID"
// @Success  200 {object} domain.Ride
// @Failure  404 {object} ErrorResponse
// @Router   /rides/{id} [get]
func handleGetRide(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		rideID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ride, err := svcs.Query.Ride(c.Request.Context(), rideID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCachedJSON(c, ride, 60)
	}
}

// @Summary  Get seat availability
// @Param    id  path  int  true  "Ride ID"
// @Success  200 {object} domain.SeatCounts
// @Router   /rides/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		rideID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		counts, err := svcs.Query.Availability(c.Request.Context(), rideID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCachedJSON(c, counts, 15)
	}
}

// @Summary  Publish ride
// @Param    req body  CreateRideRequest true "payload"
// @Success  201 {object} domain.Ride
// @Failure  403 {object} ErrorResponse "licence required"
// @Router   /rides [post]
func handleCreateRide(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		departAt, err := parseRFC3339(req.DepartAt)
		if err != nil {
			badRequest(c, "invalid depart_at (RFC3339)")
			return
		}
		ride, err := svcs.Rides.Create(c.Request.Context(), currentUserID(c), rides.CreateParams{
			Source:           req.Source,
			Destination:      req.Destination,
			TotalSeats:       req.TotalSeats,
			FarePerSeatCents: req.FarePerSeatCents,
			DepartAt:         departAt,
			CarBrand:         req.CarBrand,
			CarModel:         req.CarModel,
			CarPlate:         req.CarPlate,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, ride)
	}
}

// @Summary  My rides
// @Success  200 {array} domain.Ride
// @Router   /rides/mine [get]
func handleMyRides(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		mine, err := svcs.Rides.Mine(c.Request.Context(), currentUserID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, mine)
	}
}

// @Summary  Update ride
// @Param    id  path  int  true  "Ride ID"
// @Param    req body  UpdateRideRequest true "payload"
// @Success  200 {object} domain.Ride
// @Failure  409 {object} ErrorResponse "ride has active bookings"
// @Router   /rides/{id} [patch]
func handleUpdateRide(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		rideID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req UpdateRideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		params := rides.UpdateParams{
			Source:           req.Source,
			Destination:      req.Destination,
			TotalSeats:       req.TotalSeats,
			FarePerSeatCents: req.FarePerSeatCents,
			CarBrand:         req.CarBrand,
			CarModel:         req.CarModel,
			CarPlate:         req.CarPlate,
		}
		if req.DepartAt != nil {
			departAt, err := parseRFC3339(*req.DepartAt)
			if err != nil {
				badRequest(c, "invalid depart_at (RFC3339)")
				return
			}
			params.DepartAt = &departAt
		}
		ride, err := svcs.Rides.Update(c.Request.Context(), currentUserID(c), rideID, params)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ride)
	}
}

// @Summary  Delete ride
// @Param    id  path  int  true  "Ride ID"
// @Success  204
// @Failure  409 {object} ErrorResponse "ride has active bookings"
// @Router   /rides/{id} [delete]
func handleDeleteRide(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		rideID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Rides.Delete(c.Request.Context(), currentUserID(c), rideID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Book seats (idempotent)
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} domain.Booking
// @Failure  409 {object} ErrorResponse "not enough seats / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		userID := currentUserID(c)

		if limiter != nil {
			allowed, retryAfter, err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
			if err == nil && !allowed {
				secs := int(retryAfter/time.Second) + 1
				c.Header("Retry-After", strconv.Itoa(secs))
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(userID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		b, err := svcs.Booking.Book(c.Request.Context(), userID, req.RideID, req.Seats)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" && idem != nil {
			payload, _ := json.Marshal(b)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(payload))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, b)
	}
}

// @Summary  My active bookings
// @Success  200 {array} domain.UserBooking
// @Router   /bookings [get]
func handleMyBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings, err := svcs.Booking.UserBookings(c.Request.Context(), currentUserID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, bookings)
	}
}

// @Summary  Change booking seat count
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Param    req body  ModifyBookingRequest true "payload"
// @Success  200 {object} domain.Booking
// @Failure  409 {object} ErrorResponse "not enough seats / already cancelled"
// @Router   /bookings/{id} [patch]
func handleModifyBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req ModifyBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		b, err := svcs.Booking.ModifySeats(c.Request.Context(), currentUserID(c), bookingID, req.Seats)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Cancel booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  409 {object} ErrorResponse "already cancelled"
// @Failure  422 {object} ErrorResponse "window expired"
// @Router   /bookings/{id}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.Cancel(c.Request.Context(), currentUserID(c), bookingID, time.Now())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Update profile
// @Param    req body  UpdateProfileRequest true "payload"
// @Success  200 {object} domain.User
// @Failure  409 {object} ErrorResponse "email taken"
// @Router   /users/me [patch]
func handleUpdateProfile(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		u, err := svcs.Users.UpdateProfile(c.Request.Context(), currentUserID(c), users.UpdateProfileParams{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// @Summary  Save driving licence
// @Param    req body  SaveLicenceRequest true "payload"
// @Success  204
// @Router   /users/me/licence [patch]
func handleSaveLicence(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SaveLicenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.Users.SaveLicence(
			c.Request.Context(), currentUserID(c), req.LicenceNo, req.LicenceExp,
		); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Delete account
// @Success  204
// @Router   /users/me [delete]
func handleDeleteAccount(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Booking.DeleteAccount(c.Request.Context(), currentUserID(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// users service
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "email already registered"})
		return
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid email or password"})
		return
	case errors.Is(err, users.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "password too short"})
		return
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	// rides service
	case errors.Is(err, rides.ErrRideNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ride not found"})
		return
	case errors.Is(err, rides.ErrNotRideOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not the ride owner"})
		return
	case errors.Is(err, rides.ErrRideHasBookings):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ride has active bookings"})
		return
	case errors.Is(err, rides.ErrLicenceRequired):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "valid driving licence required"})
		return
	case errors.Is(err, rides.ErrInvalidRoute),
		errors.Is(err, rides.ErrInvalidCapacity),
		errors.Is(err, rides.ErrInvalidFare):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, rides.ErrBelowBookedFloor):
		// corrupt seat counters, not a client error
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	// query service
	case errors.Is(err, query.ErrRideNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ride not found"})
		return
	// booking service
	case errors.Is(err, booking.ErrRideNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ride not found"})
		return
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	case errors.Is(err, booking.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	case errors.Is(err, booking.ErrInsufficientSeats):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not enough seats available"})
		return
	case errors.Is(err, booking.ErrInvalidSeatCount):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "seat count must be positive"})
		return
	case errors.Is(err, booking.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking already cancelled"})
		return
	case errors.Is(err, booking.ErrWindowExpired):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "cancellation window expired"})
		return
	case errors.Is(err, booking.ErrSeatAccounting):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	// infrastructure
	case errors.Is(err, booking.ErrStorageUnavailable),
		errors.Is(err, rides.ErrStorageUnavailable),
		errors.Is(err, users.ErrStorageUnavailable),
		errors.Is(err, query.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
