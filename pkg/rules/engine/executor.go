package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"revcycle-hq/callisto/pkg/rules"
)

// Executor runs a rule's action chain in order. Each chain is sequential;
// concurrency lives one level up, across rules.
type Executor struct {
	registry  *HandlerRegistry
	evaluator *Evaluator
	logger    *slog.Logger
}

// NewExecutor creates an executor backed by the given handler registry.
func NewExecutor(registry *HandlerRegistry, evaluator *Evaluator, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:  registry,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Execute runs actions in ascending Order. A failed action stops the chain
// unless it is marked continueOnError; a stop_processing action ends the
// chain cleanly via ErrStopProcessing, which callers treat as a normal
// outcome. Cancellation is honored between actions, never mid-action.
func (x *Executor) Execute(ctx context.Context, ectx *ExecutionContext, actions []*rules.Action) ([]*ActionResult, error) {
	ordered := make([]*rules.Action, len(actions))
	copy(ordered, actions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	var results []*ActionResult
	for _, action := range ordered {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if action.DelayMs > 0 {
			if err := sleepCtx(ctx, time.Duration(action.DelayMs)*time.Millisecond); err != nil {
				return results, err
			}
		}

		result, err := x.runAction(ctx, ectx, action)
		results = append(results, result...)
		if err != nil {
			if errors.Is(err, ErrStopProcessing) {
				return results, err
			}
			if action.ContinueOnError {
				x.logger.Warn("action failed, continuing",
					slog.String("action_type", string(action.Type)),
					slog.Int("order", action.Order),
					slog.String("error", err.Error()))
				continue
			}
			return results, err
		}
	}
	return results, nil
}

// runAction executes one action. Branch actions expand to the results of
// the taken side, everything else yields exactly one result.
func (x *Executor) runAction(ctx context.Context, ectx *ExecutionContext, action *rules.Action) ([]*ActionResult, error) {
	switch action.Type {
	case rules.ActionStopProcessing:
		return []*ActionResult{{
			Type:    action.Type,
			Order:   action.Order,
			Success: true,
			Output:  map[string]any{"stopped": true},
		}}, ErrStopProcessing

	case rules.ActionConditionalBranch:
		return x.runBranch(ctx, ectx, action)
	}

	start := time.Now()
	result := &ActionResult{
		Type:  action.Type,
		Order: action.Order,
	}

	handler, ok := x.registry.Get(action.Type)
	if !ok {
		err := &UnknownActionError{ActionType: string(action.Type)}
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return []*ActionResult{result}, err
	}

	output, err := handler(ctx, ectx, action)
	result.Duration = time.Since(start)
	result.Output = output
	if err != nil {
		result.Error = err.Error()
		return []*ActionResult{result}, &ActionError{
			ActionType: string(action.Type),
			Order:      action.Order,
			Cause:      err,
		}
	}
	result.Success = true
	return []*ActionResult{result}, nil
}

// runBranch evaluates the branch condition and executes the matching side.
// The branch itself yields a result recording which side was taken, then
// the taken side's results follow.
func (x *Executor) runBranch(ctx context.Context, ectx *ExecutionContext, action *rules.Action) ([]*ActionResult, error) {
	start := time.Now()
	branchResult := &ActionResult{
		Type:  action.Type,
		Order: action.Order,
	}

	if action.Branch == nil || action.Branch.Condition == nil {
		err := errors.New("conditional_branch has no condition")
		branchResult.Error = err.Error()
		branchResult.Duration = time.Since(start)
		return []*ActionResult{branchResult}, &ActionError{
			ActionType: string(action.Type),
			Order:      action.Order,
			Cause:      err,
		}
	}

	taken, traces, err := x.evaluator.EvaluateNode(ectx, action.Branch.Condition)
	branchResult.Duration = time.Since(start)
	if err != nil {
		branchResult.Error = err.Error()
		branchResult.Output = map[string]any{"conditionTraces": traces}
		return []*ActionResult{branchResult}, &ActionError{
			ActionType: string(action.Type),
			Order:      action.Order,
			Cause:      err,
		}
	}

	// The audit trail keeps the full per-condition reasoning for the
	// branch decision, not just the side that was taken.
	branchResult.Success = true
	branchResult.Output = map[string]any{
		"branch":          branchLabel(taken),
		"conditionTraces": traces,
	}

	side := action.Branch.FalseActions
	if taken {
		side = action.Branch.TrueActions
	}

	sideResults, err := x.Execute(ctx, ectx, side)
	return append([]*ActionResult{branchResult}, sideResults...), err
}

func branchLabel(taken bool) string {
	if taken {
		return "true"
	}
	return "false"
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
