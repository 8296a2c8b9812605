package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the violation ledger.
type Metrics struct {
	RecordsTotal     *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	StoreErrors      prometheus.Counter
}

// New creates and registers all ledger metrics.
func New() *Metrics {
	return &Metrics{
		RecordsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "governor_ledger_records_total",
			Help: "Total violation records written, by rule ID",
		}, []string{"rule_id"}),
		EscalationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "governor_ledger_escalations_total",
			Help: "Records that landed in each escalation level",
		}, []string{"level"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "governor_ledger_store_errors_total",
			Help: "Ledger store operations that failed",
		}),
	}
}

// ObserveRecord counts one successful record at its escalation level.
func (m *Metrics) ObserveRecord(ruleID, level string) {
	m.RecordsTotal.WithLabelValues(ruleID).Inc()
	m.EscalationsTotal.WithLabelValues(level).Inc()
}

// ObserveStoreError counts one failed store operation.
func (m *Metrics) ObserveStoreError() {
	m.StoreErrors.Inc()
}
