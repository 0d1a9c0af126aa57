package engine

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrDepthExceeded indicates a condition tree nested past the
	// configured depth guard.
	ErrDepthExceeded = errors.New("condition depth limit exceeded")

	// ErrStopProcessing halts the remaining actions of the current rule.
	// It never crosses rule boundaries.
	ErrStopProcessing = errors.New("stop processing requested")
)

// ConditionError indicates a condition evaluation failure.
type ConditionError struct {
	Field    string
	Operator string
	Cause    error
}

// Error returns the error message.
func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %s %s: %v", e.Field, e.Operator, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConditionError) Unwrap() error {
	return e.Cause
}

// ActionError indicates an action execution failure.
type ActionError struct {
	RuleID     string
	ActionType string
	Order      int
	Cause      error
}

// Error returns the error message.
func (e *ActionError) Error() string {
	return fmt.Sprintf("rule %s action %s (order %d): %v", e.RuleID, e.ActionType, e.Order, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ActionError) Unwrap() error {
	return e.Cause
}

// UnknownActionError indicates an action type with no registered handler.
// This is a configuration error surfaced as a failed action result, never a
// process-level failure.
type UnknownActionError struct {
	ActionType string
}

// Error returns the error message.
func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("no handler registered for action type %q", e.ActionType)
}

// TimeoutError indicates a rule run exceeded its configured deadline.
type TimeoutError struct {
	RuleID  string
	Timeout time.Duration
}

// Error returns the error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rule %s: execution timeout after %v", e.RuleID, e.Timeout)
}
