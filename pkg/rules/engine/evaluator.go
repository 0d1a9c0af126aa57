package engine

import (
	"fmt"
	"strings"

	"revcycle-hq/callisto/pkg/rules"
)

const defaultMaxDepth = 16

// Evaluator walks condition trees against an execution context and records
// a trace entry for every leaf it actually touches. Short-circuited
// branches leave no trace.
type Evaluator struct {
	maxDepth int
}

// NewEvaluator creates an evaluator with the given nesting limit.
func NewEvaluator(maxDepth int) *Evaluator {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return &Evaluator{maxDepth: maxDepth}
}

// Evaluate folds a condition list under the given group operator. An empty
// list passes vacuously. The returned traces cover only the conditions that
// were evaluated, in evaluation order.
func (e *Evaluator) Evaluate(ectx *ExecutionContext, nodes []*rules.ConditionNode, op rules.LogicalOperator) (bool, []ConditionTrace, error) {
	var traces []ConditionTrace
	passed, err := e.evalGroup(ectx, nodes, op, 1, &traces)
	if err != nil {
		return false, traces, err
	}
	return passed, traces, nil
}

// EvaluateNode evaluates a single condition node, leaf or group.
func (e *Evaluator) EvaluateNode(ectx *ExecutionContext, node *rules.ConditionNode) (bool, []ConditionTrace, error) {
	var traces []ConditionTrace
	passed, err := e.evalNode(ectx, node, 1, &traces)
	if err != nil {
		return false, traces, err
	}
	return passed, traces, nil
}

// evalGroup folds children left to right. The combining operator for each
// child after the first is the child's own logicalOperator when set,
// otherwise the group's. A child is skipped entirely when its join cannot
// change the accumulator: AND with a false accumulator, OR with a true one.
func (e *Evaluator) evalGroup(ectx *ExecutionContext, nodes []*rules.ConditionNode, op rules.LogicalOperator, depth int, traces *[]ConditionTrace) (bool, error) {
	if depth > e.maxDepth {
		return false, fmt.Errorf("%w: condition nesting exceeds %d levels", ErrDepthExceeded, e.maxDepth)
	}
	if len(nodes) == 0 {
		return true, nil
	}

	acc, err := e.evalNode(ectx, nodes[0], depth, traces)
	if err != nil {
		return false, err
	}

	for _, node := range nodes[1:] {
		join := op
		if node.LogicalOperator != "" {
			join = node.LogicalOperator
		}

		if join == rules.LogicalAnd && !acc {
			continue
		}
		if join == rules.LogicalOr && acc {
			continue
		}

		result, err := e.evalNode(ectx, node, depth, traces)
		if err != nil {
			return false, err
		}
		if join == rules.LogicalOr {
			acc = acc || result
		} else {
			acc = acc && result
		}
	}
	return acc, nil
}

func (e *Evaluator) evalNode(ectx *ExecutionContext, node *rules.ConditionNode, depth int, traces *[]ConditionTrace) (bool, error) {
	if depth > e.maxDepth {
		return false, fmt.Errorf("%w: condition nesting exceeds %d levels", ErrDepthExceeded, e.maxDepth)
	}

	if node.IsGroup() {
		passed, err := e.evalGroup(ectx, node.Conditions, node.GroupOperator(), depth+1, traces)
		if err != nil {
			return false, err
		}
		if node.Negate {
			passed = !passed
		}
		return passed, nil
	}

	return e.evalLeaf(ectx, node, traces), nil
}

// evalLeaf resolves the field, applies the operator, and appends a trace.
// Operator errors annotate the trace and resolve to passed=false rather
// than aborting the rule.
func (e *Evaluator) evalLeaf(ectx *ExecutionContext, node *rules.ConditionNode, traces *[]ConditionTrace) bool {
	actual, found := e.resolve(ectx, node.Field)

	trace := ConditionTrace{
		Field:    node.Field,
		Operator: string(node.Operator),
		Expected: node.Value,
		Actual:   actual,
	}

	passed, err := evalOperator(node.Operator, actual, found, node, ectx.Timestamp)
	if err != nil {
		condErr := &ConditionError{
			Field:    node.Field,
			Operator: string(node.Operator),
			Cause:    err,
		}
		trace.Error = condErr.Error()
		trace.Passed = false
		*traces = append(*traces, trace)
		return false
	}

	if node.Negate {
		passed = !passed
	}
	trace.Passed = passed
	*traces = append(*traces, trace)
	return passed
}

// resolve looks up a field path on the current entity. Paths under the
// "previous." prefix resolve against the pre-change snapshot instead.
func (e *Evaluator) resolve(ectx *ExecutionContext, path string) (any, bool) {
	if rest, ok := strings.CutPrefix(path, "previous."); ok {
		return ResolveField(ectx.PreviousEntity, rest)
	}
	return ResolveField(ectx.Entity, path)
}
