package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActionMetrics tracks executed actions.
//
// Metrics:
//   - callisto_engine_actions_total: actions by type and status
//   - callisto_engine_action_duration_seconds: action duration by type
type ActionMetrics struct {
	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
}

// NewActionMetrics creates and registers action metrics.
func NewActionMetrics(config *Config, registry *prometheus.Registry) *ActionMetrics {
	am := &ActionMetrics{
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "actions_total",
				Help:      "Total number of executed actions by type and status",
			},
			[]string{"action_type", "status"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "action_duration_seconds",
				Help:      "Duration of action execution in seconds",
				Buckets:   config.RuleDurationBuckets,
			},
			[]string{"action_type"},
		),
	}

	registry.MustRegister(am.actionsTotal, am.actionDuration)
	return am
}

// Record records one executed action.
func (am *ActionMetrics) Record(actionType, status string, duration time.Duration) {
	am.actionsTotal.WithLabelValues(actionType, status).Inc()
	am.actionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}
