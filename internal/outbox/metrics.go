package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DLQ entry outcomes.
const (
	outcomeRequeued    = "requeued"
	outcomeQuarantined = "quarantined"
	outcomeRetry       = "retry_scheduled"
)

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "calmpulse",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of outbox events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "calmpulse",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of outbox events that failed to publish and routed to DLQ.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "calmpulse",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calmpulse",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of outbox events routed to the dead-letter queue, labeled by topic.",
	}, []string{"topic"})

	dlqOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calmpulse",
		Subsystem: "dlq",
		Name:      "entries_handled_total",
		Help:      "DLQ entries handled by the manager, labeled by what happened to them.",
	}, []string{"topic", "event_type", "outcome"})

	dlqWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "calmpulse",
		Subsystem: "dlq",
		Name:      "waiting_entries",
		Help:      "DLQ entries not yet quarantined.",
	})

	dlqOldestAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "calmpulse",
		Subsystem: "dlq",
		Name:      "oldest_entry_age_seconds",
		Help:      "Age of the oldest DLQ entry not yet quarantined.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, dlqOutcomes, dlqWaiting, dlqOldestAge)
}

func observeDLQ(entry dlqEntry, outcome string) {
	dlqOutcomes.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}

// refreshDLQGauges samples the waiting backlog. Errors leave the previous values in place.
func refreshDLQGauges(ctx context.Context, pool *pgxpool.Pool) {
	var (
		waiting int
		age     float64
	)
	err := pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(EXTRACT(EPOCH FROM NOW() - MIN(created_at)), 0)::float8
        FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&waiting, &age)
	if err != nil {
		return
	}
	dlqWaiting.Set(float64(waiting))
	dlqOldestAge.Set(age)
}
