package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridego_bookings_created_total",
		Help: "The total number of bookings confirmed",
	})
	BookingsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridego_bookings_cancelled_total",
		Help: "The total number of bookings cancelled (user and cascade)",
	})
	BookingsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ridego_bookings_rejected_total",
		Help: "The total number of rejected booking operations by reason",
	}, []string{"reason"})
	SeatsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridego_seats_reserved_total",
		Help: "The total number of seats taken from ride pools",
	})
	SeatsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridego_seats_released_total",
		Help: "The total number of seats returned to ride pools",
	})
	LedgerBugSignals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridego_ledger_bug_signals_total",
		Help: "Capacity-overflow or booked-floor violations caught by the ledger",
	})
)
