package audit

import (
	"context"
	"time"

	"revcycle-hq/callisto/pkg/rules/engine"
)

// ExecutionRecord is the persisted form of one rule execution. The summary
// fields are queryable columns; Detail carries the full result including
// condition traces and per-action outcomes.
type ExecutionRecord struct {
	ID string `json:"id"`

	RuleID      string `json:"ruleId"`
	RuleName    string `json:"ruleName"`
	RuleVersion int    `json:"ruleVersion"`

	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	TenantID   string `json:"tenantId,omitempty"`

	Triggered        bool `json:"triggered"`
	ConditionsPassed bool `json:"conditionsPassed"`
	ActionsExecuted  bool `json:"actionsExecuted"`
	ActionCount      int  `json:"actionCount"`

	Error string `json:"error,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`
	RecordedAt time.Time `json:"recordedAt"`

	Detail *engine.ExecutionResult `json:"detail,omitempty"`
}

// FromResult builds an ExecutionRecord from an engine result.
func FromResult(result *engine.ExecutionResult) *ExecutionRecord {
	return &ExecutionRecord{
		ID:               result.ID,
		RuleID:           result.RuleID,
		RuleName:         result.RuleName,
		RuleVersion:      result.RuleVersion,
		EntityType:       result.EntityType,
		EntityID:         result.EntityID,
		TenantID:         result.TenantID,
		Triggered:        result.Triggered,
		ConditionsPassed: result.ConditionsPassed,
		ActionsExecuted:  result.ActionsExecuted,
		ActionCount:      len(result.ActionResults),
		Error:            result.Error,
		StartedAt:        result.StartedAt,
		DurationMs:       result.Duration.Milliseconds(),
		RecordedAt:       time.Now(),
		Detail:           result,
	}
}

// Query filters execution records. Zero values match everything.
type Query struct {
	RuleID     string
	EntityType string
	EntityID   string
	TenantID   string

	// Since/Until bound StartedAt: [Since, Until).
	Since time.Time
	Until time.Time

	// OnlyFailed selects records with a non-empty Error.
	OnlyFailed bool

	// Limit caps the result count; 0 means no cap. Records return newest
	// first.
	Limit  int
	Offset int
}

// Storage persists execution records.
type Storage interface {
	// Store writes one record.
	Store(ctx context.Context, record *ExecutionRecord) error

	// Query returns matching records, newest first.
	Query(ctx context.Context, q Query) ([]*ExecutionRecord, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// DeleteOlderThan removes records that started before the cutoff and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOldest removes the oldest records until at most keep remain,
	// returning how many were removed.
	DeleteOldest(ctx context.Context, keep int64) (int64, error)

	// Close releases backend resources.
	Close() error
}
