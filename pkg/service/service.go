// Package service runs the event processing loop: it consumes trigger
// events from a source, captures a rule snapshot per event, hands the batch
// to the engine and records metrics. Audit persistence happens inside the
// engine's sink; the service only counts the handoffs.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"revcycle-hq/callisto/pkg/rules"
	"revcycle-hq/callisto/pkg/rules/engine"
	"revcycle-hq/callisto/pkg/rules/store"
	"revcycle-hq/callisto/pkg/telemetry/metrics"
	"revcycle-hq/callisto/pkg/trigger"
)

// Config contains configuration for the event service.
type Config struct {
	// Workers is the number of concurrent event processors. Events for the
	// same entity may interleave above 1; rule isolation inside the engine
	// keeps that safe. Default: 1.
	Workers int `yaml:"workers"`
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
}

// Service consumes trigger events and drives the rule engine.
type Service struct {
	config    *Config
	engine    *engine.Engine
	cache     *store.Cache
	source    trigger.Source
	collector *metrics.Collector
	logger    *slog.Logger

	wg sync.WaitGroup
}

// New creates the event service. collector may be nil to disable metrics.
func New(config *Config, eng *engine.Engine, cache *store.Cache, source trigger.Source, collector *metrics.Collector, logger *slog.Logger) (*Service, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if eng == nil {
		return nil, fmt.Errorf("service: engine is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("service: rule cache is required")
	}
	if source == nil {
		return nil, fmt.Errorf("service: trigger source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:    config,
		engine:    eng,
		cache:     cache,
		source:    source,
		collector: collector,
		logger:    logger.With(slog.String("component", "service")),
	}, nil
}

// Run processes events until the source channel closes or ctx is cancelled.
// It blocks; run it on its own goroutine when embedding.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("event service started",
		slog.Int("workers", s.config.Workers))

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.wg.Wait()

	s.logger.Info("event service stopped")
	return ctx.Err()
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.source.Events():
			if !ok {
				return
			}
			s.ProcessEvent(ctx, event)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessEvent runs one trigger event against the current rule snapshot and
// returns the per-rule results. The snapshot is captured once at entry, so
// a concurrent rule reload never affects an in-flight event.
func (s *Service) ProcessEvent(ctx context.Context, event *rules.TriggerEvent) []*engine.ExecutionResult {
	if event == nil {
		return nil
	}

	snapshot := s.cache.Snapshot()
	start := time.Now()

	if s.collector != nil {
		s.collector.RecordEvent(string(event.TriggerType))
	}

	results := s.engine.Run(ctx, event, snapshot)
	s.record(results, time.Since(start))

	s.logger.Debug("event processed",
		slog.String("entity_type", event.EntityType),
		slog.String("entity_id", event.EntityID),
		slog.String("trigger", string(event.TriggerType)),
		slog.Int64("rules_version", s.cache.Version()),
		slog.Int("rules_run", len(results)))

	return results
}

func (s *Service) record(results []*engine.ExecutionResult, elapsed time.Duration) {
	if s.collector == nil {
		return
	}

	for _, result := range results {
		s.collector.RecordRuleExecution(result.RuleID, outcome(result), result.Duration)
		for _, action := range result.ActionResults {
			status := "success"
			if !action.Success {
				status = "failed"
			}
			s.collector.RecordAction(string(action.Type), status, action.Duration)
		}
		s.collector.RecordAuditWrite()
	}
	s.collector.RecordBatch(len(results), elapsed)
}

// outcome classifies a result for the executions counter.
func outcome(result *engine.ExecutionResult) string {
	switch {
	case result.Error != "":
		return "error"
	case !result.ConditionsPassed:
		return "skipped"
	case result.ActionsExecuted:
		return "passed"
	default:
		return "failed"
	}
}
