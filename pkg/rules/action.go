package rules

import "fmt"

// ActionType identifies a typed side-effecting step in a rule's action list.
type ActionType string

const (
	ActionAssignQueue       ActionType = "assign_queue"
	ActionSendNotification  ActionType = "send_notification"
	ActionUpdateField       ActionType = "update_field"
	ActionCreateTask        ActionType = "create_task"
	ActionEscalate          ActionType = "escalate"
	ActionTriggerWebhook    ActionType = "trigger_webhook"
	ActionDelay             ActionType = "delay"
	ActionConditionalBranch ActionType = "conditional_branch"
	ActionSendEmail         ActionType = "send_email"
	ActionSendSMS           ActionType = "send_sms"
	ActionAddNote           ActionType = "add_note"
	ActionSetPriority       ActionType = "set_priority"
	ActionAssignUser        ActionType = "assign_user"
	ActionCreateFollowUp    ActionType = "create_follow_up"
	ActionRunScript         ActionType = "run_script"
	ActionStopProcessing    ActionType = "stop_processing"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionAssignQueue, ActionSendNotification, ActionUpdateField,
		ActionCreateTask, ActionEscalate, ActionTriggerWebhook, ActionDelay,
		ActionConditionalBranch, ActionSendEmail, ActionSendSMS, ActionAddNote,
		ActionSetPriority, ActionAssignUser, ActionCreateFollowUp,
		ActionRunScript, ActionStopProcessing:
		return true
	}
	return false
}

// Action is one step in a rule's action list. Parameters is a type-tagged
// payload whose shape depends on Type; the typed accessors below cover the
// common cases. conditional_branch actions carry their nested condition and
// action lists in Branch rather than Parameters so the recursion stays typed.
type Action struct {
	Type       ActionType     `json:"type" yaml:"type"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// Order defines the execution sequence; actions run ascending by Order,
	// ties broken by declaration order.
	Order int `json:"order" yaml:"order"`

	// ContinueOnError keeps the rule's remaining actions running when this
	// action fails. Default false: a failure stops the rest of the chain.
	ContinueOnError bool `json:"continueOnError,omitempty" yaml:"continueOnError,omitempty"`

	// DelayMs waits this long before the action executes.
	DelayMs int64 `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`

	// Branch is set for conditional_branch actions only.
	Branch *Branch `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// Branch is the nested payload of a conditional_branch action.
type Branch struct {
	// Condition gates which action list runs.
	Condition *ConditionNode `json:"condition" yaml:"condition"`

	TrueActions  []*Action `json:"trueActions,omitempty" yaml:"trueActions,omitempty"`
	FalseActions []*Action `json:"falseActions,omitempty" yaml:"falseActions,omitempty"`
}

// GetParameter returns the raw parameter value for key, or nil.
func (a *Action) GetParameter(key string) any {
	if a.Parameters == nil {
		return nil
	}
	return a.Parameters[key]
}

// GetStringParameter returns the string value of a parameter, or "" when the
// parameter is absent or not a string.
func (a *Action) GetStringParameter(key string) string {
	if s, ok := a.GetParameter(key).(string); ok {
		return s
	}
	return ""
}

// GetNumberParameter returns the numeric value of a parameter, or 0 when the
// parameter is absent or not numeric. JSON decoding yields float64; integer
// values from YAML decode as int and are widened here.
func (a *Action) GetNumberParameter(key string) float64 {
	switch v := a.GetParameter(key).(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// GetBoolParameter returns the boolean value of a parameter, or false.
func (a *Action) GetBoolParameter(key string) bool {
	if b, ok := a.GetParameter(key).(bool); ok {
		return b
	}
	return false
}

// GetMapParameter returns the map value of a parameter, or nil.
func (a *Action) GetMapParameter(key string) map[string]any {
	if m, ok := a.GetParameter(key).(map[string]any); ok {
		return m
	}
	return nil
}

// requiredParams maps action types to the parameter keys a handler cannot
// work without. Validation surfaces these as configuration errors up front
// instead of failed action results at run time.
var requiredParams = map[ActionType][]string{
	ActionAssignQueue:      {"queue"},
	ActionUpdateField:      {"field"},
	ActionSendNotification: {"message"},
	ActionCreateTask:       {"title"},
	ActionTriggerWebhook:   {"url"},
	ActionSendEmail:        {"to"},
	ActionSendSMS:          {"to"},
	ActionAddNote:          {"note"},
	ActionSetPriority:      {"priority"},
	ActionAssignUser:       {"userId"},
	ActionCreateFollowUp:   {"dueInDays"},
	ActionRunScript:        {"script"},
}

// Validate checks the action for configuration errors, recursing into
// conditional branches.
func (a *Action) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.DelayMs < 0 {
		return fmt.Errorf("delayMs cannot be negative")
	}

	if a.Type == ActionConditionalBranch {
		if a.Branch == nil || a.Branch.Condition == nil {
			return fmt.Errorf("conditional_branch requires a branch condition")
		}
		if err := a.Branch.Condition.Validate(); err != nil {
			return fmt.Errorf("branch condition: %w", err)
		}
		for i, sub := range a.Branch.TrueActions {
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("branch true action %d: %w", i, err)
			}
		}
		for i, sub := range a.Branch.FalseActions {
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("branch false action %d: %w", i, err)
			}
		}
		return nil
	}

	for _, key := range requiredParams[a.Type] {
		if a.GetParameter(key) == nil {
			return fmt.Errorf("action %s: missing required parameter %q", a.Type, key)
		}
	}
	return nil
}
