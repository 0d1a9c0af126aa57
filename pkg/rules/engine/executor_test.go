package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"revcycle-hq/callisto/pkg/rules"
)

func newTestExecutor(t *testing.T) (*Executor, *HandlerRegistry, *[]string) {
	t.Helper()
	registry := NewHandlerRegistry()
	var calls []string

	registry.Register(rules.ActionAddNote, func(_ context.Context, _ *ExecutionContext, a *rules.Action) (map[string]any, error) {
		note := a.GetStringParameter("note")
		calls = append(calls, "add_note:"+note)
		return map[string]any{"note": note}, nil
	})
	registry.Register(rules.ActionSetPriority, func(_ context.Context, _ *ExecutionContext, a *rules.Action) (map[string]any, error) {
		calls = append(calls, "set_priority")
		return nil, nil
	})
	registry.Register(rules.ActionTriggerWebhook, func(_ context.Context, _ *ExecutionContext, _ *rules.Action) (map[string]any, error) {
		calls = append(calls, "trigger_webhook")
		return nil, errors.New("connection refused")
	})

	executor := NewExecutor(registry, NewEvaluator(0), slog.New(slog.DiscardHandler))
	return executor, registry, &calls
}

func noteAction(order int, note string) *rules.Action {
	return &rules.Action{
		Type:       rules.ActionAddNote,
		Order:      order,
		Parameters: map[string]any{"note": note},
	}
}

func TestExecuteOrdersActions(t *testing.T) {
	x, _, calls := newTestExecutor(t)

	actions := []*rules.Action{
		noteAction(3, "third"),
		noteAction(1, "first"),
		noteAction(2, "second"),
	}

	results, err := x.Execute(context.Background(), testContext(nil), actions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	want := []string{"add_note:first", "add_note:second", "add_note:third"}
	for i, w := range want {
		if (*calls)[i] != w {
			t.Errorf("call %d = %q, want %q", i, (*calls)[i], w)
		}
	}
}

func TestExecuteFailureStopsChain(t *testing.T) {
	x, _, calls := newTestExecutor(t)

	actions := []*rules.Action{
		{Type: rules.ActionTriggerWebhook, Order: 1, Parameters: map[string]any{"url": "http://example.invalid"}},
		noteAction(2, "never"),
	}

	results, err := x.Execute(context.Background(), testContext(nil), actions)
	if err == nil {
		t.Fatal("expected error from failed action")
	}
	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("expected ActionError, got %T", err)
	}
	if len(results) != 1 {
		t.Fatalf("skipped actions must produce no results, got %d", len(results))
	}
	if results[0].Success {
		t.Error("failed action result marked success")
	}
	for _, c := range *calls {
		if c == "add_note:never" {
			t.Error("action after terminal failure was executed")
		}
	}
}

func TestExecuteContinueOnError(t *testing.T) {
	x, _, calls := newTestExecutor(t)

	actions := []*rules.Action{
		{Type: rules.ActionTriggerWebhook, Order: 1, ContinueOnError: true, Parameters: map[string]any{"url": "http://example.invalid"}},
		noteAction(2, "after"),
	}

	results, err := x.Execute(context.Background(), testContext(nil), actions)
	if err != nil {
		t.Fatalf("continueOnError failure must not surface: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Success || results[0].Error == "" {
		t.Errorf("failed action must record failure, got %+v", results[0])
	}
	if !results[1].Success {
		t.Error("follow-up action should have succeeded")
	}
	if (*calls)[len(*calls)-1] != "add_note:after" {
		t.Error("follow-up action did not run")
	}
}

func TestExecuteStopProcessing(t *testing.T) {
	x, _, calls := newTestExecutor(t)

	actions := []*rules.Action{
		noteAction(1, "before"),
		{Type: rules.ActionStopProcessing, Order: 2},
		noteAction(3, "never"),
	}

	results, err := x.Execute(context.Background(), testContext(nil), actions)
	if !errors.Is(err, ErrStopProcessing) {
		t.Fatalf("expected ErrStopProcessing, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[1].Success {
		t.Error("stop_processing records a successful result")
	}
	for _, c := range *calls {
		if c == "add_note:never" {
			t.Error("action after stop_processing was executed")
		}
	}
}

func TestExecuteUnknownActionType(t *testing.T) {
	x, _, _ := newTestExecutor(t)

	actions := []*rules.Action{
		{Type: rules.ActionType("teleport"), Order: 1},
	}

	results, err := x.Execute(context.Background(), testContext(nil), actions)
	if err == nil {
		t.Fatal("expected error for unregistered action type")
	}
	var unknown *UnknownActionError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownActionError, got %T", err)
	}
	if len(results) != 1 || results[0].Success {
		t.Errorf("unregistered type must yield a failed result, got %+v", results)
	}
}

func TestExecuteConditionalBranch(t *testing.T) {
	tests := []struct {
		name       string
		amount     float64
		wantBranch string
		wantNote   string
	}{
		{name: "true side", amount: 5000, wantBranch: "true", wantNote: "add_note:high"},
		{name: "false side", amount: 100, wantBranch: "false", wantNote: "add_note:low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, _, calls := newTestExecutor(t)
			ectx := testContext(map[string]any{"deniedAmount": tt.amount})

			actions := []*rules.Action{{
				Type:  rules.ActionConditionalBranch,
				Order: 1,
				Branch: &rules.Branch{
					Condition:    leaf("deniedAmount", rules.OpGreaterThan, float64(1000)),
					TrueActions:  []*rules.Action{noteAction(1, "high")},
					FalseActions: []*rules.Action{noteAction(1, "low")},
				},
			}}

			results, err := x.Execute(context.Background(), ectx, actions)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(results) != 2 {
				t.Fatalf("expected branch + side results, got %d", len(results))
			}
			if got := results[0].Output["branch"]; got != tt.wantBranch {
				t.Errorf("branch output = %v, want %v", got, tt.wantBranch)
			}
			traces, ok := results[0].Output["conditionTraces"].([]ConditionTrace)
			if !ok || len(traces) != 1 {
				t.Fatalf("branch output must carry the decision traces, got %v", results[0].Output["conditionTraces"])
			}
			if traces[0].Field != "deniedAmount" || traces[0].Passed != (tt.wantBranch == "true") {
				t.Errorf("branch trace = %+v", traces[0])
			}
			if (*calls)[0] != tt.wantNote {
				t.Errorf("executed %q, want %q", (*calls)[0], tt.wantNote)
			}
		})
	}
}

func TestExecuteBranchPropagatesStop(t *testing.T) {
	x, _, calls := newTestExecutor(t)
	ectx := testContext(map[string]any{"deniedAmount": 5000.0})

	actions := []*rules.Action{
		{
			Type:  rules.ActionConditionalBranch,
			Order: 1,
			Branch: &rules.Branch{
				Condition:   leaf("deniedAmount", rules.OpGreaterThan, float64(1000)),
				TrueActions: []*rules.Action{{Type: rules.ActionStopProcessing, Order: 1}},
			},
		},
		noteAction(2, "never"),
	}

	_, err := x.Execute(context.Background(), ectx, actions)
	if !errors.Is(err, ErrStopProcessing) {
		t.Fatalf("stop inside branch must end the outer chain, got %v", err)
	}
	for _, c := range *calls {
		if c == "add_note:never" {
			t.Error("outer action after branch stop was executed")
		}
	}
}

func TestExecuteCancellationBetweenActions(t *testing.T) {
	registry := NewHandlerRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	var ran []string
	registry.Register(rules.ActionAddNote, func(_ context.Context, _ *ExecutionContext, a *rules.Action) (map[string]any, error) {
		note := a.GetStringParameter("note")
		ran = append(ran, note)
		cancel()
		return nil, nil
	})

	x := NewExecutor(registry, NewEvaluator(0), slog.New(slog.DiscardHandler))
	actions := []*rules.Action{noteAction(1, "first"), noteAction(2, "second")}

	results, err := x.Execute(ctx, testContext(nil), actions)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the first action's result, got %d", len(results))
	}
	if fmt.Sprint(ran) != "[first]" {
		t.Errorf("ran = %v, want only first", ran)
	}
}
