package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "food_rescue_reservations_created_total",
		Help: "Total number of reservations committed by the ledger.",
	})

	ReservationTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "food_rescue_reservation_transitions_total",
		Help: "Committed reservation status transitions by target status.",
	},
		[]string{"status"},
	)

	QuantityRefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "food_rescue_quantity_refunds_total",
		Help: "Reservations whose quantity was returned to the listing (cancel or expire).",
	})

	LedgerRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "food_rescue_ledger_rejections_total",
		Help: "Ledger operations rejected, by reason.",
	},
		[]string{"reason"},
	)

	NotifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "food_rescue_notify_failures_total",
		Help: "Status-change events the notifier failed to accept.",
	})

	SweepExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "food_rescue_sweep_expired_total",
		Help: "Entities expired by the active sweep, by entity.",
	},
		[]string{"entity"},
	)

	SweepCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "food_rescue_sweep_completed_total",
		Help: "Fully picked-up listings closed by the active sweep.",
	})

	NotificationsHandledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "food_rescue_notifications_handled_total",
		Help: "Notification events handled by the consumer, by outcome.",
	},
		[]string{"outcome"},
	)

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "food_rescue_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by scope.",
	},
		[]string{"scope"},
	)

	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "food_rescue_idempotent_replays_total",
		Help: "Reservation requests answered from an earlier request with the same Idempotency-Key.",
	})

	RelayForwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "food_rescue_relay_forwarded_total",
		Help: "Status-change events forwarded from the Redis stream to Kafka.",
	})
)
