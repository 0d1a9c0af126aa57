package engine

import (
	"time"

	"revcycle-hq/callisto/pkg/rules"
)

// ExecutionContext carries everything one rule run needs: the entity record
// under evaluation, the firing trigger, and a timestamp fixed once per
// execution. All relative-date operators measure against Timestamp rather
// than the wall clock so a single run stays internally consistent.
//
// The engine owns the context for the duration of one rule run. Each rule in
// a batch receives its own deep copy of the entity record, so field
// mutations made by one rule's actions are never visible to another rule.
type ExecutionContext struct {
	EntityType string
	EntityID   string

	// Entity is the record conditions resolve against and update_field
	// actions mutate.
	Entity map[string]any

	// PreviousEntity is the pre-change snapshot, when the trigger has one.
	PreviousEntity map[string]any

	// ChangedFields lists the fields modified by the triggering change.
	ChangedFields []string

	Trigger rules.TriggerType

	// FromStatus/ToStatus carry the transition for status-change triggers.
	FromStatus string
	ToStatus   string

	UserID   string
	TenantID string
	Metadata map[string]any

	// Timestamp is captured once when the execution starts.
	Timestamp time.Time
}

// ContextFromEvent builds an ExecutionContext from a trigger event,
// deep-copying the entity record so the rule run owns its mutations.
func ContextFromEvent(event *rules.TriggerEvent) *ExecutionContext {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &ExecutionContext{
		EntityType:     event.EntityType,
		EntityID:       event.EntityID,
		Entity:         cloneRecord(event.Entity),
		PreviousEntity: event.PreviousEntity,
		ChangedFields:  event.ChangedFields,
		Trigger:        event.TriggerType,
		FromStatus:     event.FromStatus,
		ToStatus:       event.ToStatus,
		UserID:         event.UserID,
		TenantID:       event.TenantID,
		Metadata:       event.Metadata,
		Timestamp:      ts,
	}
}

// ConditionTrace records one leaf condition that was actually evaluated.
// Short-circuited siblings never appear, keeping audit trails truthful.
type ConditionTrace struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
	Passed   bool   `json:"passed"`

	// Error annotates evaluation failures (invalid regex, type mismatch).
	// The condition resolves to passed=false instead of aborting siblings.
	Error string `json:"error,omitempty"`
}

// ActionResult is the outcome of one attempted action. Actions skipped
// because an earlier action failed terminally produce no result at all.
type ActionResult struct {
	Type    rules.ActionType `json:"type"`
	Order   int              `json:"order"`
	Success bool             `json:"success"`
	Output  map[string]any   `json:"output,omitempty"`
	Error   string           `json:"error,omitempty"`

	Duration time.Duration `json:"duration"`
}

// ExecutionResult is the immutable record of one (rule, trigger event)
// run. It is created fresh per run, handed to the audit sink once, and
// never mutated afterward.
type ExecutionResult struct {
	ID string `json:"id"`

	RuleID      string `json:"ruleId"`
	RuleName    string `json:"ruleName"`
	RuleVersion int    `json:"ruleVersion"`

	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	TenantID   string `json:"tenantId,omitempty"`

	// Triggered reports whether the rule's trigger matched the event.
	Triggered bool `json:"triggered"`

	ConditionsPassed bool             `json:"conditionsPassed"`
	ConditionTraces  []ConditionTrace `json:"conditionTraces,omitempty"`

	// ActionsExecuted is true only when every attempted action either
	// succeeded or failed with continueOnError set.
	ActionsExecuted bool            `json:"actionsExecuted"`
	ActionResults   []*ActionResult `json:"actionResults,omitempty"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	// Error carries a top-level failure outside any single condition or
	// action (e.g. batch cancellation).
	Error string `json:"error,omitempty"`
}

// AuditSink receives one ExecutionResult per rule run. Implementations must
// not block rule processing; a failed write is the sink's problem to log,
// never the engine's to propagate.
type AuditSink interface {
	Record(result *ExecutionResult)
}

// cloneRecord deep-copies an entity record so one rule's mutations cannot
// leak into another rule's evaluation.
func cloneRecord(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneRecord(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}
