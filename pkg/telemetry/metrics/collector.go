package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config contains configuration for the metrics collector.
type Config struct {
	// Enabled turns metric recording on. When false every Record call is a
	// no-op, but the registry and handler still work.
	Enabled bool `yaml:"enabled"`

	// Namespace and Subsystem prefix every metric name.
	// Defaults: "callisto", "engine".
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	// RuleDurationBuckets are the histogram buckets for rule execution
	// duration in seconds.
	RuleDurationBuckets []float64 `yaml:"rule_duration_buckets"`

	// MaxRuleCardinality caps the number of distinct rule_id label values.
	// Default: 1000.
	MaxRuleCardinality int `yaml:"max_rule_cardinality"`
}

// Collector owns the Prometheus registry and all metric families for rule
// processing.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	engineMetrics *EngineMetrics
	actionMetrics *ActionMetrics
	auditMetrics  *AuditMetrics

	ruleCardinality *CardinalityLimiter
}

// NewCollector creates a collector registered against the given registry.
// A nil registry gets a fresh one.
func NewCollector(config *Config, registry *prometheus.Registry) *Collector {
	if config == nil {
		config = &Config{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if config.Namespace == "" {
		config.Namespace = "callisto"
	}
	if config.Subsystem == "" {
		config.Subsystem = "engine"
	}
	if len(config.RuleDurationBuckets) == 0 {
		// Rule executions span microseconds (condition-only) to seconds
		// (webhook actions with retries).
		config.RuleDurationBuckets = []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}
	}
	if config.MaxRuleCardinality <= 0 {
		config.MaxRuleCardinality = 1000
	}

	c := &Collector{
		config:          config,
		registry:        registry,
		ruleCardinality: NewCardinalityLimiter(config.MaxRuleCardinality),
	}
	c.engineMetrics = NewEngineMetrics(config, registry)
	c.actionMetrics = NewActionMetrics(config, registry)
	c.auditMetrics = NewAuditMetrics(config, registry)
	return c
}

// RecordEvent counts one trigger event entering the pipeline.
func (c *Collector) RecordEvent(triggerType string) {
	if !c.config.Enabled {
		return
	}
	c.engineMetrics.RecordEvent(triggerType)
}

// RecordRuleExecution records one rule run. outcome is one of "passed",
// "failed", "skipped", "error".
func (c *Collector) RecordRuleExecution(ruleID, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	if !c.ruleCardinality.Allow(ruleID) {
		ruleID = "other"
	}
	c.engineMetrics.RecordExecution(ruleID, outcome, duration)
}

// RecordBatch records one processed event batch.
func (c *Collector) RecordBatch(ruleCount int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.engineMetrics.RecordBatch(ruleCount, duration)
}

// RecordAction records one executed action. status is "success" or "failed".
func (c *Collector) RecordAction(actionType, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.actionMetrics.Record(actionType, status, duration)
}

// RecordAuditWrite counts one audit record handed to the sink.
func (c *Collector) RecordAuditWrite() {
	if !c.config.Enabled {
		return
	}
	c.auditMetrics.RecordWrite()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter bounds the number of unique label values for a metric
// dimension.
type CardinalityLimiter struct {
	max     int
	current map[string]struct{}
	mu      sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing at most max values.
func NewCardinalityLimiter(max int) *CardinalityLimiter {
	return &CardinalityLimiter{
		max:     max,
		current: make(map[string]struct{}),
	}
}

// Allow reports whether the value may be used as a label. Known values are
// always allowed; new values are allowed until the limit is reached.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.max {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current number of tracked values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
