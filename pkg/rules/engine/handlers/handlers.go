// Package handlers provides the builtin action handlers: local record
// mutations (update_field, set_priority, assignment), work-item outputs
// (tasks, follow-ups, notes), and outbound deliveries (webhook, email,
// SMS). Callers register them on an engine.HandlerRegistry and can layer
// their own handlers on top.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"revcycle-hq/callisto/pkg/outbound"
	"revcycle-hq/callisto/pkg/rules"
	"revcycle-hq/callisto/pkg/rules/engine"
)

// ScriptRunner executes a run_script action. No builtin runner exists;
// deployments that allow scripted actions inject one.
type ScriptRunner func(ctx context.Context, script string, entity map[string]any) (map[string]any, error)

// Options configures the builtin handlers.
type Options struct {
	Logger *slog.Logger

	// Outbound delivers webhook, email, and SMS payloads. Required for
	// the delivery handlers; leaving it nil makes those actions fail.
	Outbound *outbound.Client

	// EmailGatewayURL and SMSGatewayURL are the delivery endpoints the
	// send_email and send_sms handlers post to.
	EmailGatewayURL string
	SMSGatewayURL   string

	// ScriptRunner backs run_script. Nil means scripted actions fail.
	ScriptRunner ScriptRunner
}

// RegisterDefaults installs every builtin handler on the registry.
func RegisterDefaults(registry *engine.HandlerRegistry, opts Options) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	registry.Register(rules.ActionUpdateField, updateField)
	registry.Register(rules.ActionAssignQueue, assignQueue)
	registry.Register(rules.ActionAssignUser, assignUser)
	registry.Register(rules.ActionSetPriority, setPriority)
	registry.Register(rules.ActionEscalate, escalate)
	registry.Register(rules.ActionAddNote, addNote)
	registry.Register(rules.ActionCreateTask, createTask)
	registry.Register(rules.ActionCreateFollowUp, createFollowUp)
	registry.Register(rules.ActionSendNotification, sendNotification(opts.Logger))
	registry.Register(rules.ActionDelay, delay)
	registry.Register(rules.ActionRunScript, runScript(opts.ScriptRunner))
	registry.Register(rules.ActionTriggerWebhook, triggerWebhook(opts.Outbound))
	registry.Register(rules.ActionSendEmail, sendDelivery(opts.Outbound, opts.EmailGatewayURL, "email"))
	registry.Register(rules.ActionSendSMS, sendDelivery(opts.Outbound, opts.SMSGatewayURL, "sms"))
}

// updateField writes a value at a dotted path on the entity record,
// creating intermediate maps as needed. The change is scoped to the current
// rule's copy of the record.
func updateField(_ context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
	field := a.GetStringParameter("field")
	if field == "" {
		return nil, fmt.Errorf("update_field requires a field parameter")
	}
	value := a.GetParameter("value")

	if ectx.Entity == nil {
		ectx.Entity = make(map[string]any)
	}
	if err := setField(ectx.Entity, field, value); err != nil {
		return nil, err
	}
	return map[string]any{"field": field, "value": value}, nil
}

func assignQueue(_ context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
	queue := a.GetStringParameter("queue")
	if queue == "" {
		return nil, fmt.Errorf("assign_queue requires a queue parameter")
	}
	if ectx.Entity != nil {
		ectx.Entity["queue"] = queue
	}
	return map[string]any{"queue": queue}, nil
}

func assignUser(_ context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
	userID := a.GetStringParameter("userId")
	if userID == "" {
		return nil, fmt.Errorf("assign_user requires a userId parameter")
	}
	if ectx.Entity != nil {
		ectx.Entity["assignedTo"] = userID
	}
	return map[string]any{"userId": userID}, nil
}

func setPriority(_ context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
	priority := a.GetParameter("priority")
	if priority == nil {
		return nil, fmt.Errorf("set_priority requires a priority parameter")
	}
	if ectx.Entity != nil {
		ectx.Entity["priority"] = priority
	}
	return map[string]any{"priority": priority}, nil
}

func escalate(_ context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
	urgency := a.GetStringParameter("urgency")
	if urgency == "" {
		urgency = "high"
	}
	if ectx.Entity != nil {
		ectx.Entity["escalated"] = true
		ectx.Entity["escalationUrgency"] = urgency
	}
	return map[string]any{"escalated": true, "urgency": urgency}, nil
}

// addNote appends to the entity's notes list and stamps the note with the
// execution timestamp.
func addNote(_ context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
	note := a.GetStringParameter("note")
	if note == "" {
		return nil, fmt.Errorf("add_note requires a note parameter")
	}

	entry := map[string]any{
		"note":      note,
		"createdAt": ectx.Timestamp.Format(time.RFC3339),
		"author":    "rules-engine",
	}
	if ectx.Entity != nil {
		notes, _ := ectx.Entity["notes"].([]any)
		ectx.Entity["notes"] = append(notes, entry)
	}
	return entry, nil
}

func createTask(_ context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
	title := a.GetStringParameter("title")
	if title == "" {
		return nil, fmt.Errorf("create_task requires a title parameter")
	}

	task := map[string]any{
		"taskId":     uuid.NewString(),
		"title":      title,
		"entityType": ectx.EntityType,
		"entityId":   ectx.EntityID,
		"createdAt":  ectx.Timestamp.Format(time.RFC3339),
	}
	if desc := a.GetStringParameter("description"); desc != "" {
		task["description"] = desc
	}
	if assignee := a.GetStringParameter("assignee"); assignee != "" {
		task["assignee"] = assignee
	}
	return task, nil
}

// createFollowUp schedules a follow-up relative to the execution timestamp.
func createFollowUp(_ context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
	dueInDays := a.GetNumberParameter("dueInDays")
	if dueInDays <= 0 {
		return nil, fmt.Errorf("create_follow_up requires a positive dueInDays parameter")
	}

	due := ectx.Timestamp.AddDate(0, 0, int(dueInDays))
	return map[string]any{
		"followUpId": uuid.NewString(),
		"entityType": ectx.EntityType,
		"entityId":   ectx.EntityID,
		"dueDate":    due.Format(time.RFC3339),
		"reason":     a.GetStringParameter("reason"),
	}, nil
}

// sendNotification emits a structured log entry. Real transport lives
// behind send_email, send_sms, and trigger_webhook; this action feeds
// in-app notification feeds that consume the audit stream.
func sendNotification(logger *slog.Logger) engine.ActionHandler {
	return func(_ context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
		message := a.GetStringParameter("message")
		if message == "" {
			return nil, fmt.Errorf("send_notification requires a message parameter")
		}

		logger.Info("notification",
			slog.String("entity_type", ectx.EntityType),
			slog.String("entity_id", ectx.EntityID),
			slog.String("message", message),
			slog.String("channel", a.GetStringParameter("channel")))

		return map[string]any{
			"message": message,
			"channel": a.GetStringParameter("channel"),
		}, nil
	}
}

// delay pauses the action chain. Distinct from an action's delayMs, which
// delays before a single action; this delays as an action of its own.
func delay(ctx context.Context, _ *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
	ms := a.GetNumberParameter("durationMs")
	if ms <= 0 {
		return nil, fmt.Errorf("delay requires a positive durationMs parameter")
	}

	d := time.Duration(ms) * time.Millisecond
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return map[string]any{"delayedMs": ms}, nil
}

func runScript(runner ScriptRunner) engine.ActionHandler {
	return func(ctx context.Context, ectx *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
		script := a.GetStringParameter("script")
		if script == "" {
			return nil, fmt.Errorf("run_script requires a script parameter")
		}
		if runner == nil {
			return nil, fmt.Errorf("no script runner configured")
		}
		return runner(ctx, script, ectx.Entity)
	}
}

// setField walks a dotted path, creating intermediate maps, and sets the
// final key. A non-map value in the middle of the path is an error.
func setField(record map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	current := record
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part]
		if !ok || next == nil {
			child := make(map[string]any)
			current[part] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot set %q: %q is not an object", path, part)
		}
		current = child
	}
	current[parts[len(parts)-1]] = value
	return nil
}
