package rules

import "time"

// TriggerType identifies the event class that makes a rule eligible to run.
type TriggerType string

const (
	TriggerOnCreate              TriggerType = "on_create"
	TriggerOnUpdate              TriggerType = "on_update"
	TriggerOnStatusChange        TriggerType = "on_status_change"
	TriggerOnFieldChange         TriggerType = "on_field_change"
	TriggerScheduled             TriggerType = "scheduled"
	TriggerManual                TriggerType = "manual"
	TriggerOnPaymentPosted       TriggerType = "on_payment_posted"
	TriggerOnDenialReceived      TriggerType = "on_denial_received"
	TriggerOnClaimSubmitted      TriggerType = "on_claim_submitted"
	TriggerOnDeadlineApproaching TriggerType = "on_deadline_approaching"
	TriggerOnAssignmentChange    TriggerType = "on_assignment_change"
	TriggerWebhook               TriggerType = "webhook"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerOnCreate, TriggerOnUpdate, TriggerOnStatusChange,
		TriggerOnFieldChange, TriggerScheduled, TriggerManual,
		TriggerOnPaymentPosted, TriggerOnDenialReceived,
		TriggerOnClaimSubmitted, TriggerOnDeadlineApproaching,
		TriggerOnAssignmentChange, TriggerWebhook:
		return true
	}
	return false
}

// Trigger describes when a rule becomes eligible for evaluation.
// Only the fields relevant to Type are populated.
type Trigger struct {
	Type TriggerType `json:"type" yaml:"type"`

	// WatchFields narrows on_field_change triggers to specific fields.
	WatchFields []string `json:"watchFields,omitempty" yaml:"watchFields,omitempty"`

	// FromStatuses/ToStatuses narrow on_status_change triggers. An empty
	// set means any status matches.
	FromStatuses []string `json:"fromStatuses,omitempty" yaml:"fromStatuses,omitempty"`
	ToStatuses   []string `json:"toStatuses,omitempty" yaml:"toStatuses,omitempty"`

	// CronSchedule is the cron expression for scheduled triggers.
	CronSchedule string `json:"cronSchedule,omitempty" yaml:"cronSchedule,omitempty"`

	// DaysBeforeDeadline applies to on_deadline_approaching triggers.
	DaysBeforeDeadline int `json:"daysBeforeDeadline,omitempty" yaml:"daysBeforeDeadline,omitempty"`

	// WebhookPath applies to webhook triggers.
	WebhookPath string `json:"webhookPath,omitempty" yaml:"webhookPath,omitempty"`
}

// TriggerEvent is a single occurrence of a trigger: an entity change,
// a schedule tick, or a manual/webhook invocation. The engine consumes
// events; it never produces them.
type TriggerEvent struct {
	EntityType  string      `json:"entityType"`
	EntityID    string      `json:"entityId"`
	TriggerType TriggerType `json:"triggerType"`

	// Entity is the record under evaluation. PreviousEntity is the
	// pre-change snapshot when the producer has one.
	Entity         map[string]any `json:"entity"`
	PreviousEntity map[string]any `json:"previousEntity,omitempty"`

	// ChangedFields lists the fields modified by this change, for
	// on_field_change matching.
	ChangedFields []string `json:"changedFields,omitempty"`

	// FromStatus/ToStatus carry the transition for on_status_change events.
	FromStatus string `json:"fromStatus,omitempty"`
	ToStatus   string `json:"toStatus,omitempty"`

	// Timestamp is when the event occurred. All relative-date operators in
	// the engine measure against this single instant.
	Timestamp time.Time `json:"timestamp"`

	UserID   string         `json:"userId,omitempty"`
	TenantID string         `json:"tenantId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
