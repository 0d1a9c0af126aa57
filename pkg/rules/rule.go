package rules

import (
	"fmt"
	"time"
)

// LogicalOperator combines sibling conditions within a group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Rule is a single automation rule: when its trigger fires and its
// conditions pass against the entity record, its actions execute in order.
type Rule struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Trigger Trigger `json:"trigger" yaml:"trigger"`

	// Conditions are combined by ConditionsOperator (default AND). An empty
	// list is vacuously satisfied so a rule can fire unconditionally.
	Conditions         []*ConditionNode `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	ConditionsOperator LogicalOperator  `json:"conditionsOperator,omitempty" yaml:"conditionsOperator,omitempty"`

	Actions []*Action `json:"actions,omitempty" yaml:"actions,omitempty"`

	// Priority orders rules within a batch; lower values run first.
	Priority int  `json:"priority" yaml:"priority"`
	IsActive bool `json:"isActive" yaml:"isActive"`

	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`

	// Version increments on every saved edit.
	Version int `json:"version" yaml:"version"`

	// EffectiveFrom/EffectiveTo bound a half-open [from, to) validity window
	// compared against the trigger event timestamp. Nil means unbounded.
	EffectiveFrom *time.Time `json:"effectiveFrom,omitempty" yaml:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time `json:"effectiveTo,omitempty" yaml:"effectiveTo,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EffectiveOperator returns the top-level conditions operator, defaulting to AND.
func (r *Rule) EffectiveOperator() LogicalOperator {
	if r.ConditionsOperator == LogicalOr {
		return LogicalOr
	}
	return LogicalAnd
}

// InEffect reports whether t falls inside the rule's validity window.
// The window is half-open: effectiveFrom is inclusive, effectiveTo exclusive.
func (r *Rule) InEffect(t time.Time) bool {
	if r.EffectiveFrom != nil && t.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !t.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// HasConditions returns true if the rule has at least one condition.
func (r *Rule) HasConditions() bool {
	return len(r.Conditions) > 0
}

// HasActions returns true if the rule has at least one action.
func (r *Rule) HasActions() bool {
	return len(r.Actions) > 0
}

// Validate checks the rule for configuration errors: missing name, unknown
// trigger/operator/action tags, and malformed condition trees. It returns
// all problems found, not just the first.
func (r *Rule) Validate() error {
	var errs []string

	if r.Name == "" {
		errs = append(errs, "rule name is required")
	}
	if !r.Trigger.Type.Valid() {
		errs = append(errs, fmt.Sprintf("unknown trigger type %q", r.Trigger.Type))
	}
	if r.ConditionsOperator != "" && r.ConditionsOperator != LogicalAnd && r.ConditionsOperator != LogicalOr {
		errs = append(errs, fmt.Sprintf("unknown conditions operator %q", r.ConditionsOperator))
	}
	for i, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("condition %d: %v", i, err))
		}
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("action %d: %v", i, err))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{RuleID: r.ID, RuleName: r.Name, Errors: errs}
	}
	return nil
}

// ValidationError reports one or more rule configuration problems.
type ValidationError struct {
	RuleID   string
	RuleName string
	Errors   []string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	name := e.RuleName
	if name == "" {
		name = e.RuleID
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("rule %q: %s", name, e.Errors[0])
	}
	return fmt.Sprintf("rule %q: %d validation errors: %v", name, len(e.Errors), e.Errors)
}
