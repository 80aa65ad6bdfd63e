package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsStartedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "calmpulse",
		Subsystem: "sessions",
		Name:      "started_total",
		Help:      "Number of meditation sessions started.",
	})
	sessionsCompletedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calmpulse",
		Subsystem: "sessions",
		Name:      "completed_total",
		Help:      "Number of session completions logged, labeled by whether the full target duration was reached.",
	}, []string{"full"})
	lastCompletionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "calmpulse",
		Subsystem: "sessions",
		Name:      "last_completion_timestamp_seconds",
		Help:      "Unix timestamp of the most recent session completion persisted.",
	})
	daySetLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calmpulse",
		Subsystem: "progress",
		Name:      "dayset_cache_lookups_total",
		Help:      "Day-set cache lookups, labeled hit or miss.",
	}, []string{"result"})
	progressFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "calmpulse",
		Subsystem: "progress",
		Name:      "remote_fetches_total",
		Help:      "Remote day-set fetches, labeled ok or error.",
	}, []string{"result"})
	communityRefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "calmpulse",
		Subsystem: "community",
		Name:      "refresh_duration_seconds",
		Help:      "Time spent loading the community list and counts.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})
	communityRefreshErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "calmpulse",
		Subsystem: "community",
		Name:      "refresh_errors_total",
		Help:      "Community refreshes that failed.",
	})
)

func init() {
	prometheus.MustRegister(
		sessionsStartedCounter,
		sessionsCompletedCounter,
		lastCompletionGauge,
		daySetLookups,
		progressFetches,
		communityRefreshDuration,
		communityRefreshErrors,
	)
}

// RecordSessionStarted counts a session start.
func RecordSessionStarted() {
	sessionsStartedCounter.Inc()
}

// RecordSessionCompleted counts a completion and moves the completion watermark.
func RecordSessionCompleted(full bool, ts time.Time) {
	label := "false"
	if full {
		label = "true"
	}
	sessionsCompletedCounter.WithLabelValues(label).Inc()
	if !ts.IsZero() {
		lastCompletionGauge.Set(float64(ts.Unix()))
	}
}

// RecordDaySetLookup counts a cache hit or miss.
func RecordDaySetLookup(hit bool) {
	if hit {
		daySetLookups.WithLabelValues("hit").Inc()
		return
	}
	daySetLookups.WithLabelValues("miss").Inc()
}

// RecordProgressFetch counts a remote day-set fetch outcome.
func RecordProgressFetch(err error) {
	if err != nil {
		progressFetches.WithLabelValues("error").Inc()
		return
	}
	progressFetches.WithLabelValues("ok").Inc()
}

// RecordCommunityRefresh observes one community refresh.
func RecordCommunityRefresh(elapsed time.Duration, err error) {
	communityRefreshDuration.Observe(elapsed.Seconds())
	if err != nil {
		communityRefreshErrors.Inc()
	}
}
