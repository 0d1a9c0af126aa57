package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"revcycle-hq/callisto/pkg/rules"
)

// EntityLoader fetches the entities a scheduled rule should run against.
// Returning an empty slice skips the tick.
type EntityLoader func(ctx context.Context, rule *rules.Rule) ([]map[string]any, error)

// CronSourceConfig configures the cron source.
type CronSourceConfig struct {
	// Buffer is the event channel buffer size. Default: 64.
	Buffer int

	// EntityType/EntityIDField name the entity stream scheduled rules run
	// against. EntityIDField is the record field holding the entity ID.
	// Defaults: "claim", "id".
	EntityType    string
	EntityIDField string
}

func (c *CronSourceConfig) applyDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.EntityType == "" {
		c.EntityType = "claim"
	}
	if c.EntityIDField == "" {
		c.EntityIDField = "id"
	}
}

// CronSource emits a scheduled trigger event per entity whenever a rule's
// cron expression fires. Rules without a CronSchedule, or with a trigger
// other than scheduled, are ignored.
type CronSource struct {
	config CronSourceConfig
	loader EntityLoader
	logger *slog.Logger

	events chan *rules.TriggerEvent

	mu      sync.Mutex
	cron    *cron.Cron
	entries []cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
}

// NewCronSource creates a cron source. loader supplies the entities each
// scheduled rule evaluates.
func NewCronSource(config CronSourceConfig, loader EntityLoader, logger *slog.Logger) *CronSource {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &CronSource{
		config: config,
		loader: loader,
		logger: logger.With(slog.String("component", "trigger.cron")),
		events: make(chan *rules.TriggerEvent, config.Buffer),
		cron:   cron.New(),
	}
}

// SetRules replaces the scheduled rule set, typically after a hot reload.
// Safe to call before or after Start.
func (s *CronSource) SetRules(ruleSet []*rules.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}

	for _, id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = s.entries[:0]

	for _, rule := range ruleSet {
		if rule.Trigger.Type != rules.TriggerScheduled || rule.Trigger.CronSchedule == "" {
			continue
		}
		if !rule.IsActive {
			continue
		}
		if _, err := cron.ParseStandard(rule.Trigger.CronSchedule); err != nil {
			return fmt.Errorf("rule %s: invalid cron schedule %q: %w",
				rule.ID, rule.Trigger.CronSchedule, err)
		}

		r := rule
		id, err := s.cron.AddFunc(rule.Trigger.CronSchedule, func() {
			s.fire(r)
		})
		if err != nil {
			return fmt.Errorf("rule %s: schedule: %w", rule.ID, err)
		}
		s.entries = append(s.entries, id)

		s.logger.Debug("scheduled rule registered",
			slog.String("rule_id", rule.ID),
			slog.String("schedule", rule.Trigger.CronSchedule))
	}
	return nil
}

// Start begins firing scheduled events.
func (s *CronSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true

	go func() {
		<-s.ctx.Done()
		s.Close()
	}()
	return nil
}

// Events returns the event channel.
func (s *CronSource) Events() <-chan *rules.TriggerEvent {
	return s.events
}

// Close stops the scheduler, waits for a running tick to finish and closes
// the event channel.
func (s *CronSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	close(s.events)
	return nil
}

// fire runs one scheduled tick for a rule: load entities, emit one event
// each. Runs on the cron goroutine, so Stop waits for it.
func (s *CronSource) fire(rule *rules.Rule) {
	ctx := s.ctx
	if ctx == nil || ctx.Err() != nil {
		return
	}

	entities, err := s.loader(ctx, rule)
	if err != nil {
		s.logger.Error("entity load failed for scheduled rule",
			slog.String("rule_id", rule.ID),
			slog.String("error", err.Error()))
		return
	}
	if len(entities) == 0 {
		s.logger.Debug("scheduled tick with no entities",
			slog.String("rule_id", rule.ID))
		return
	}

	now := time.Now()
	for _, entity := range entities {
		event := &rules.TriggerEvent{
			EntityType:  s.config.EntityType,
			EntityID:    entityID(entity, s.config.EntityIDField),
			TriggerType: rules.TriggerScheduled,
			Entity:      entity,
			Timestamp:   now,
			Metadata:    map[string]any{"scheduledRuleId": rule.ID},
		}
		select {
		case s.events <- event:
		case <-ctx.Done():
			return
		}
	}

	s.logger.Info("scheduled tick emitted",
		slog.String("rule_id", rule.ID),
		slog.Int("entity_count", len(entities)))
}

func entityID(entity map[string]any, field string) string {
	if v, ok := entity[field]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}
