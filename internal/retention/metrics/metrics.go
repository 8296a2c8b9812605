package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the retention store.
type Metrics struct {
	EntriesAppended prometheus.Counter
	EntriesEvicted  prometheus.Counter
	Queries         prometheus.Counter
	SweepDuration   prometheus.Histogram
}

// New creates and registers all retention metrics.
func New() *Metrics {
	return &Metrics{
		EntriesAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "governor_retention_entries_appended_total",
			Help: "Context entries appended to the retention store",
		}),
		EntriesEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "governor_retention_entries_evicted_total",
			Help: "Context entries removed by policy sweeps",
		}),
		Queries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "governor_retention_queries_total",
			Help: "Retention store queries served",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "governor_retention_sweep_duration_seconds",
			Help:    "Duration of background eviction sweeps",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
