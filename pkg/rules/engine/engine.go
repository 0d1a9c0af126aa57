package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"revcycle-hq/callisto/pkg/rules"
)

// Engine evaluates rules against trigger events and executes their action
// chains. It is stateless across events: rule storage, trigger sources, and
// audit persistence are the caller's collaborators, injected at
// construction.
type Engine struct {
	config    *Config
	evaluator *Evaluator
	executor  *Executor
	registry  *HandlerRegistry
	audit     AuditSink
	logger    *slog.Logger
}

// New creates a rule engine. The registry must carry handlers for every
// action type the rule set uses; unregistered types fail at execution time
// as failed action results, not at construction. audit may be nil.
func New(config *Config, registry *HandlerRegistry, audit AuditSink, logger *slog.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if registry == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	evaluator := NewEvaluator(config.MaxConditionDepth)
	return &Engine{
		config:    config,
		evaluator: evaluator,
		executor:  NewExecutor(registry, evaluator, logger),
		registry:  registry,
		audit:     audit,
		logger:    logger,
	}, nil
}

// Run selects the rules that fire for an event from the candidate set and
// executes them, returning one result per selected rule in deterministic
// order (priority ascending, name tiebreak). Rules are isolated: one rule
// failing, timing out, or panicking never prevents the others from running.
//
// With MaxConcurrentRules > 1 rules run in parallel under a semaphore; each
// rule still evaluates against its own deep copy of the entity record, so
// parallel rules never observe each other's field mutations.
func (e *Engine) Run(ctx context.Context, event *rules.TriggerEvent, candidates []*rules.Rule) []*ExecutionResult {
	selected := SelectRules(candidates, event)
	if len(selected) == 0 {
		return nil
	}

	e.logger.Debug("rules selected",
		slog.String("entity_type", event.EntityType),
		slog.String("entity_id", event.EntityID),
		slog.String("trigger", string(event.TriggerType)),
		slog.Int("count", len(selected)))

	results := make([]*ExecutionResult, len(selected))

	if e.config.MaxConcurrentRules <= 1 {
		for i, rule := range selected {
			results[i] = e.runRule(ctx, rule, event)
		}
	} else {
		sem := make(chan struct{}, e.config.MaxConcurrentRules)
		var wg sync.WaitGroup
		for i, rule := range selected {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, rule *rules.Rule) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = e.runRule(ctx, rule, event)
			}(i, rule)
		}
		wg.Wait()
	}

	if e.audit != nil {
		for _, result := range results {
			e.audit.Record(result)
		}
	}
	return results
}

// TestRule runs a single rule against a caller-built execution context,
// following the exact production path: conditions evaluate with full traces
// and the action chain runs through the registered handlers. The engine
// applies no dry-run special-casing; sandboxing side effects is the
// caller's job (register stub handlers for the actions that must not reach
// the outside world). The only difference from a batch run is that the
// result never reaches the audit sink.
func (e *Engine) TestRule(ctx context.Context, rule *rules.Rule, ectx *ExecutionContext) (*ExecutionResult, error) {
	if rule == nil {
		return nil, fmt.Errorf("rule cannot be nil")
	}
	if ectx == nil {
		return nil, fmt.Errorf("execution context cannot be nil")
	}
	if ectx.Timestamp.IsZero() {
		ectx.Timestamp = time.Now()
	}
	return e.execute(ctx, rule, ectx), nil
}

// runRule executes one rule against the triggering event. Each rule works
// on its own copy of the entity record.
func (e *Engine) runRule(ctx context.Context, rule *rules.Rule, event *rules.TriggerEvent) *ExecutionResult {
	return e.execute(ctx, rule, ContextFromEvent(event))
}

// execute is the single evaluation path shared by batch runs and TestRule.
// The rule runs in full isolation: panics from action handlers are
// contained here and surface as a failed result.
func (e *Engine) execute(ctx context.Context, rule *rules.Rule, ectx *ExecutionContext) (result *ExecutionResult) {
	start := time.Now()
	result = &ExecutionResult{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		RuleVersion: rule.Version,
		EntityType:  ectx.EntityType,
		EntityID:    ectx.EntityID,
		TenantID:    ectx.TenantID,
		Triggered:   true,
		StartedAt:   start,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("rule panicked: %v", r)
			result.Duration = time.Since(start)
			e.logger.Error("rule execution panicked",
				slog.String("rule_id", rule.ID),
				slog.Any("panic", r))
		}
	}()
	defer func() { result.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	runCtx := ctx
	if e.config.RuleTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.config.RuleTimeout)
		defer cancel()
	}

	passed, traces, err := e.evaluator.Evaluate(ectx, rule.Conditions, rule.EffectiveOperator())
	result.ConditionTraces = traces
	if err != nil {
		result.Error = err.Error()
		e.logger.Warn("condition evaluation failed",
			slog.String("rule_id", rule.ID),
			slog.String("error", err.Error()))
		return result
	}

	result.ConditionsPassed = passed
	if !passed {
		return result
	}

	actionResults, err := e.executor.Execute(runCtx, ectx, rule.Actions)
	result.ActionResults = actionResults
	switch {
	case err == nil, errors.Is(err, ErrStopProcessing):
		result.ActionsExecuted = true
	case errors.Is(err, context.DeadlineExceeded):
		timeoutErr := &TimeoutError{RuleID: rule.ID, Timeout: e.config.RuleTimeout}
		result.Error = timeoutErr.Error()
		e.logger.Warn("rule timed out",
			slog.String("rule_id", rule.ID),
			slog.Duration("timeout", e.config.RuleTimeout))
	default:
		result.Error = err.Error()
		e.logger.Warn("action chain failed",
			slog.String("rule_id", rule.ID),
			slog.String("error", err.Error()))
	}
	return result
}
