package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Sweeper ─────────────────────────────────────────────────────────────────

	SweepTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "sweeper",
		Name:      "ticks_total",
		Help:      "Total sweep ticks, labelled by outcome (ok, error, not_leader).",
	}, []string{"outcome"})

	SweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "auratask",
		Subsystem: "sweeper",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one sweep over all active tasks.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	RemindersDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "sweeper",
		Name:      "reminders_dispatched_total",
		Help:      "Reminders handed to the outbound topic, labelled by kind.",
	}, []string{"kind"})

	ReminderDispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "sweeper",
		Name:      "reminder_dispatch_failures_total",
		Help:      "Dispatch attempts that failed and were left eligible for retry.",
	}, []string{"kind"})

	// ─── Ranker ──────────────────────────────────────────────────────────────────

	RankTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "ranker",
		Name:      "ticks_total",
		Help:      "Total re-rank ticks, labelled by outcome (ok, error, not_leader).",
	}, []string{"outcome"})

	ScoresChanged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "ranker",
		Name:      "scores_changed_total",
		Help:      "Tasks whose urgency score moved past the publish threshold.",
	})

	// ─── Notifier ────────────────────────────────────────────────────────────────

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "notifier",
		Name:      "deliveries_total",
		Help:      "Channel delivery attempts, labelled by channel and result.",
	}, []string{"channel", "result"})

	DeliveryRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "notifier",
		Name:      "retries_total",
		Help:      "Delivery retry attempts per channel.",
	}, []string{"channel"})

	NotifierDLQTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "notifier",
		Name:      "dlq_total",
		Help:      "Deliveries dead-lettered after exhausting retries.",
	})

	NotifierRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "notifier",
		Name:      "rate_limited_total",
		Help:      "Deliveries deferred by the per-channel rate limiter.",
	}, []string{"channel"})

	// ─── API Gateway ─────────────────────────────────────────────────────────────

	APITasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auratask",
		Subsystem: "api",
		Name:      "tasks_created_total",
		Help:      "Tasks created through the API gateway.",
	})
)
