// Package engine evaluates automation rules against entity records and
// executes their action lists.
//
// The engine is assembled from four pieces, each independently testable:
//
//   - the field resolver walks dotted paths into entity records
//   - the condition evaluator recursively evaluates leaf comparisons and
//     nested AND/OR groups, producing a per-condition trace
//   - the rule selector filters and orders the rules eligible for a
//     trigger event
//   - the action executor dispatches typed actions to registered handlers
//     with per-action delay, continue-on-error, and stop semantics
//
// Engine ties them together: for each selected rule it evaluates
// conditions, runs actions when they pass, and hands an immutable
// ExecutionResult to the audit sink. Rules are isolated from one another;
// a failing rule never stops the rest of the batch.
//
// Handlers are injected through a HandlerRegistry at construction time.
// The engine owns no global state.
package engine
