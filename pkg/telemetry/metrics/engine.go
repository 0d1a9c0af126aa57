package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks trigger events and rule executions.
//
// Metrics:
//   - callisto_engine_events_total: trigger events by type
//   - callisto_engine_rule_executions_total: rule runs by rule and outcome
//   - callisto_engine_rule_duration_seconds: rule execution duration
//   - callisto_engine_batch_rules: rules selected per event batch
//   - callisto_engine_batch_duration_seconds: batch processing duration
type EngineMetrics struct {
	eventsTotal     *prometheus.CounterVec
	executionsTotal *prometheus.CounterVec
	ruleDuration    *prometheus.HistogramVec
	batchRules      prometheus.Histogram
	batchDuration   prometheus.Histogram
}

// NewEngineMetrics creates and registers engine metrics.
func NewEngineMetrics(config *Config, registry *prometheus.Registry) *EngineMetrics {
	em := &EngineMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "events_total",
				Help:      "Total number of trigger events processed",
			},
			[]string{"trigger_type"},
		),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "rule_executions_total",
				Help:      "Total number of rule executions by outcome",
			},
			[]string{"rule_id", "outcome"},
		),
		ruleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "rule_duration_seconds",
				Help:      "Duration of rule execution in seconds",
				Buckets:   config.RuleDurationBuckets,
			},
			[]string{"rule_id"},
		),
		batchRules: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "batch_rules",
				Help:      "Number of rules selected per event",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "batch_duration_seconds",
				Help:      "Duration of processing one event across all rules",
				Buckets:   config.RuleDurationBuckets,
			},
		),
	}

	registry.MustRegister(
		em.eventsTotal,
		em.executionsTotal,
		em.ruleDuration,
		em.batchRules,
		em.batchDuration,
	)
	return em
}

// RecordEvent counts a trigger event.
func (em *EngineMetrics) RecordEvent(triggerType string) {
	em.eventsTotal.WithLabelValues(triggerType).Inc()
}

// RecordExecution records one rule run.
func (em *EngineMetrics) RecordExecution(ruleID, outcome string, duration time.Duration) {
	em.executionsTotal.WithLabelValues(ruleID, outcome).Inc()
	em.ruleDuration.WithLabelValues(ruleID).Observe(duration.Seconds())
}

// RecordBatch records one processed event.
func (em *EngineMetrics) RecordBatch(ruleCount int, duration time.Duration) {
	em.batchRules.Observe(float64(ruleCount))
	em.batchDuration.Observe(duration.Seconds())
}
