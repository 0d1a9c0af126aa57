package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AuditMetrics tracks records handed to the audit sink.
//
// Metrics:
//   - callisto_engine_audit_writes_total: records handed to the audit sink
type AuditMetrics struct {
	writesTotal prometheus.Counter
}

// NewAuditMetrics creates and registers audit metrics.
func NewAuditMetrics(config *Config, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		writesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "audit_writes_total",
				Help:      "Total number of execution records handed to the audit sink",
			},
		),
	}
	registry.MustRegister(am.writesTotal)
	return am
}

// RecordWrite counts one audit record.
func (am *AuditMetrics) RecordWrite() {
	am.writesTotal.Inc()
}
