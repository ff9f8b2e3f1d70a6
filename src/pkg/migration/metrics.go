package migration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	migrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelf",
		Name:      "migrations_total",
		Help:      "Number of migration attempts by outcome",
	}, []string{"outcome"})

	migrationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shelf",
		Name:      "migration_duration_seconds",
		Help:      "Duration of migration attempts by outcome",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
)

const (
	outcomeNoop        = "noop"
	outcomeInitialized = "initialized"
	outcomeCommitted   = "committed"
	outcomeAborted     = "aborted"
	outcomeRejected    = "rejected"
	outcomeError       = "error"
)

func observe(outcome string, seconds float64) {
	migrationsTotal.WithLabelValues(outcome).Inc()
	migrationDuration.WithLabelValues(outcome).Observe(seconds)
}
