package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the session validator.
type Metrics struct {
	ChecksTotal      *prometheus.CounterVec
	MatchesTotal     *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	PartialResponses prometheus.Counter
	CheckDuration    prometheus.Histogram
}

// New creates and registers all validator metrics.
func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "governor_validator_checks_total",
			Help: "Events submitted for checking",
		}, []string{"tier"}),
		MatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "governor_validator_matches_total",
			Help: "Rule matches returned to callers",
		}, []string{"severity"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "governor_validator_cache_hits_total",
			Help: "Checks served from the result cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "governor_validator_cache_misses_total",
			Help: "Checks that missed or bypassed the result cache",
		}),
		PartialResponses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "governor_validator_partial_responses_total",
			Help: "Checks degraded by an unavailable auxiliary store",
		}),
		CheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "governor_validator_check_duration_seconds",
			Help:    "Duration of uncached checks",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
