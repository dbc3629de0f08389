package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the journal's prometheus instruments.
type Metrics struct {
	Pending  prometheus.Gauge
	Flushed  prometheus.Counter
	Flushes  prometheus.Counter
	Failures prometheus.Counter
}

// NewMetrics creates the journal metrics and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "recordkeep",
			Subsystem: "audit",
			Name:      "pending_entries",
			Help:      "Audit entries queued in memory awaiting flush.",
		}),
		Flushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordkeep",
			Subsystem: "audit",
			Name:      "flushed_entries_total",
			Help:      "Audit entries durably written to the audit collection.",
		}),
		Flushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordkeep",
			Subsystem: "audit",
			Name:      "flushes_total",
			Help:      "Successful audit flush batches.",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordkeep",
			Subsystem: "audit",
			Name:      "flush_failures_total",
			Help:      "Audit flush batches that failed and were re-queued.",
		}),
	}
}
