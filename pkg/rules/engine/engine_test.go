package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"revcycle-hq/callisto/pkg/rules"
)

type captureSink struct {
	mu      sync.Mutex
	results []*ExecutionResult
}

func (s *captureSink) Record(result *ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func newTestEngine(t *testing.T, config *Config, registry *HandlerRegistry) (*Engine, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	eng, err := New(config, registry, sink, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return eng, sink
}

func engineRegistry() *HandlerRegistry {
	registry := NewHandlerRegistry()
	registry.Register(rules.ActionUpdateField, func(_ context.Context, ectx *ExecutionContext, a *rules.Action) (map[string]any, error) {
		field := a.GetStringParameter("field")
		value := a.GetParameter("value")
		ectx.Entity[field] = value
		return map[string]any{"field": field, "value": value}, nil
	})
	registry.Register(rules.ActionAddNote, func(_ context.Context, _ *ExecutionContext, a *rules.Action) (map[string]any, error) {
		note := a.GetStringParameter("note")
		return map[string]any{"note": note}, nil
	})
	registry.Register(rules.ActionRunScript, func(_ context.Context, _ *ExecutionContext, _ *rules.Action) (map[string]any, error) {
		return nil, errors.New("script host unavailable")
	})
	return registry
}

func engineEvent(entity map[string]any) *rules.TriggerEvent {
	return &rules.TriggerEvent{
		EntityType:  "claim",
		EntityID:    "CLM-1",
		TriggerType: rules.TriggerOnUpdate,
		Entity:      entity,
		Timestamp:   testNow,
	}
}

func engineRule(name string, priority int, conditions []*rules.ConditionNode, actions []*rules.Action) *rules.Rule {
	return &rules.Rule{
		ID:         "rule-" + name,
		Name:       name,
		Trigger:    rules.Trigger{Type: rules.TriggerOnUpdate},
		Conditions: conditions,
		Actions:    actions,
		Priority:   priority,
		IsActive:   true,
		Version:    1,
	}
}

func TestRunExecutesRulesInOrder(t *testing.T) {
	eng, sink := newTestEngine(t, nil, engineRegistry())

	candidates := []*rules.Rule{
		engineRule("second", 20, nil, []*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "b"}}}),
		engineRule("first", 10, nil, []*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "a"}}}),
	}

	results := eng.Run(context.Background(), engineEvent(map[string]any{"status": "DENIED"}), candidates)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].RuleName != "first" || results[1].RuleName != "second" {
		t.Errorf("results out of priority order: %s, %s", results[0].RuleName, results[1].RuleName)
	}
	for _, r := range results {
		if !r.Triggered || !r.ConditionsPassed || !r.ActionsExecuted {
			t.Errorf("rule %s: unexpected outcome %+v", r.RuleName, r)
		}
		if r.ID == "" {
			t.Errorf("rule %s: missing execution id", r.RuleName)
		}
	}
	if len(sink.results) != 2 {
		t.Errorf("audit sink received %d results, want 2", len(sink.results))
	}
}

func TestRunNoMatchingRules(t *testing.T) {
	eng, sink := newTestEngine(t, nil, engineRegistry())

	rule := engineRule("r", 1, nil, nil)
	rule.IsActive = false

	results := eng.Run(context.Background(), engineEvent(nil), []*rules.Rule{rule})
	if results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
	if len(sink.results) != 0 {
		t.Error("audit sink should receive nothing when no rules fire")
	}
}

func TestRunRuleIsolation(t *testing.T) {
	eng, _ := newTestEngine(t, nil, engineRegistry())

	candidates := []*rules.Rule{
		engineRule("failing", 1, nil, []*rules.Action{{Type: rules.ActionRunScript, Order: 1, Parameters: map[string]any{"script": "x"}}}),
		engineRule("healthy", 2, nil, []*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "ok"}}}),
	}

	results := eng.Run(context.Background(), engineEvent(nil), candidates)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Error == "" || results[0].ActionsExecuted {
		t.Errorf("failing rule should record its failure, got %+v", results[0])
	}
	if !results[1].ActionsExecuted {
		t.Error("failure in one rule must not prevent the next rule from running")
	}
}

func TestRunRulePanicContained(t *testing.T) {
	registry := engineRegistry()
	registry.Register(rules.ActionEscalate, func(_ context.Context, _ *ExecutionContext, _ *rules.Action) (map[string]any, error) {
		panic("handler bug")
	})
	eng, _ := newTestEngine(t, nil, registry)

	candidates := []*rules.Rule{
		engineRule("panics", 1, nil, []*rules.Action{{Type: rules.ActionEscalate, Order: 1}}),
		engineRule("survives", 2, nil, []*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "ok"}}}),
	}

	results := eng.Run(context.Background(), engineEvent(nil), candidates)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Error == "" {
		t.Error("panicking rule must surface an error in its result")
	}
	if !results[1].ActionsExecuted {
		t.Error("panic in one rule must not take down the batch")
	}
}

func TestRunEntityMutationIsolatedPerRule(t *testing.T) {
	eng, _ := newTestEngine(t, nil, engineRegistry())

	// First rule rewrites the status; second rule's condition still sees
	// the original value because each rule gets its own copy.
	mutator := engineRule("mutator", 1, nil, []*rules.Action{{
		Type:       rules.ActionUpdateField,
		Order:      1,
		Parameters: map[string]any{"field": "status", "value": "ESCALATED"},
	}})
	observer := engineRule("observer", 2,
		[]*rules.ConditionNode{leaf("status", rules.OpEquals, "DENIED")},
		[]*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "saw original"}}})

	entity := map[string]any{"status": "DENIED"}
	results := eng.Run(context.Background(), engineEvent(entity), []*rules.Rule{mutator, observer})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[1].ConditionsPassed {
		t.Error("second rule observed the first rule's mutation")
	}
	if entity["status"] != "DENIED" {
		t.Error("source entity record was mutated")
	}
}

func TestRunMutationVisibleWithinRule(t *testing.T) {
	eng, _ := newTestEngine(t, nil, engineRegistry())

	rule := engineRule("chained", 1, nil, []*rules.Action{
		{
			Type:       rules.ActionUpdateField,
			Order:      1,
			Parameters: map[string]any{"field": "priority", "value": "high"},
		},
		{
			Type:  rules.ActionConditionalBranch,
			Order: 2,
			Branch: &rules.Branch{
				Condition:   leaf("priority", rules.OpEquals, "high"),
				TrueActions: []*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "sees update"}}},
			},
		},
	})

	results := eng.Run(context.Background(), engineEvent(map[string]any{"priority": "low"}), []*rules.Rule{rule})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	var branchTaken string
	for _, ar := range results[0].ActionResults {
		if ar.Type == rules.ActionConditionalBranch {
			branchTaken, _ = ar.Output["branch"].(string)
		}
	}
	if branchTaken != "true" {
		t.Errorf("later action in the same rule must see the mutation, branch = %q", branchTaken)
	}
}

func TestRunConcurrentRules(t *testing.T) {
	config := DefaultConfig()
	config.MaxConcurrentRules = 4

	eng, sink := newTestEngine(t, config, engineRegistry())

	var candidates []*rules.Rule
	names := []string{"a", "b", "c", "d", "e", "f"}
	for i, name := range names {
		candidates = append(candidates, engineRule(name, i,
			[]*rules.ConditionNode{leaf("status", rules.OpEquals, "DENIED")},
			[]*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": name}}}))
	}

	results := eng.Run(context.Background(), engineEvent(map[string]any{"status": "DENIED"}), candidates)
	if len(results) != len(names) {
		t.Fatalf("expected %d results, got %d", len(names), len(results))
	}
	for i, name := range names {
		if results[i].RuleName != name {
			t.Errorf("result %d = %q, want %q: order must stay deterministic under concurrency", i, results[i].RuleName, name)
		}
		if !results[i].ActionsExecuted {
			t.Errorf("rule %q did not execute", name)
		}
	}
	if len(sink.results) != len(names) {
		t.Errorf("audit sink received %d results, want %d", len(sink.results), len(names))
	}
}

func TestRunStopProcessingScopedToRule(t *testing.T) {
	eng, _ := newTestEngine(t, nil, engineRegistry())

	stopper := engineRule("stopper", 1, nil, []*rules.Action{
		{Type: rules.ActionStopProcessing, Order: 1},
		{Type: rules.ActionAddNote, Order: 2, Parameters: map[string]any{"note": "never"}},
	})
	next := engineRule("next", 2, nil, []*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "runs"}}})

	results := eng.Run(context.Background(), engineEvent(nil), []*rules.Rule{stopper, next})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].ActionsExecuted || len(results[0].ActionResults) != 1 {
		t.Errorf("stop_processing should end its own chain cleanly, got %+v", results[0])
	}
	if !results[1].ActionsExecuted {
		t.Error("stop_processing must not affect subsequent rules")
	}
}

func TestTestRuleFollowsProductionPath(t *testing.T) {
	registry := NewHandlerRegistry()
	invoked := false
	registry.Register(rules.ActionAddNote, func(_ context.Context, _ *ExecutionContext, _ *rules.Action) (map[string]any, error) {
		invoked = true
		return map[string]any{"noteId": "n-1"}, nil
	})
	eng, sink := newTestEngine(t, nil, registry)

	rule := engineRule("candidate", 1,
		[]*rules.ConditionNode{leaf("status", rules.OpEquals, "DENIED")},
		[]*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "x"}}})

	result, err := eng.TestRule(context.Background(), rule, testContext(map[string]any{"status": "DENIED"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ConditionsPassed {
		t.Error("expected conditions to pass")
	}
	if len(result.ConditionTraces) != 1 {
		t.Errorf("expected 1 trace, got %d", len(result.ConditionTraces))
	}

	// TestRule runs the action chain through the registered handlers,
	// exactly like a batch run. Callers sandbox by choosing the handlers.
	if !invoked {
		t.Error("expected the registered handler to run")
	}
	if !result.ActionsExecuted {
		t.Error("expected ActionsExecuted")
	}
	if len(result.ActionResults) != 1 {
		t.Fatalf("expected 1 action result, got %d", len(result.ActionResults))
	}
	if !result.ActionResults[0].Success {
		t.Errorf("action failed: %s", result.ActionResults[0].Error)
	}

	if len(sink.results) != 0 {
		t.Error("TestRule must not reach the audit sink")
	}
}

func TestTestRuleVacuousConditions(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register(rules.ActionAddNote, func(_ context.Context, _ *ExecutionContext, _ *rules.Action) (map[string]any, error) {
		return nil, nil
	})
	eng, _ := newTestEngine(t, nil, registry)

	rule := engineRule("unconditional", 1, nil,
		[]*rules.Action{{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "x"}}})

	result, err := eng.TestRule(context.Background(), rule, testContext(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ConditionsPassed || !result.ActionsExecuted {
		t.Errorf("conditions=%t actions=%t, want both true",
			result.ConditionsPassed, result.ActionsExecuted)
	}
	if len(result.ActionResults) != 1 {
		t.Errorf("expected 1 action result, got %d", len(result.ActionResults))
	}
}
