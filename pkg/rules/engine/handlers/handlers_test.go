package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"revcycle-hq/callisto/pkg/outbound"
	"revcycle-hq/callisto/pkg/rules"
	"revcycle-hq/callisto/pkg/rules/engine"
)

func testRegistry(t *testing.T, opts Options) *engine.HandlerRegistry {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	registry := engine.NewHandlerRegistry()
	RegisterDefaults(registry, opts)
	return registry
}

func handlerContext() *engine.ExecutionContext {
	return &engine.ExecutionContext{
		EntityType: "denial",
		EntityID:   "DEN-7",
		Entity:     map[string]any{"status": "NEW"},
		Timestamp:  time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC),
	}
}

func run(t *testing.T, registry *engine.HandlerRegistry, ectx *engine.ExecutionContext, actionType rules.ActionType, params map[string]any) (map[string]any, error) {
	t.Helper()
	handler, ok := registry.Get(actionType)
	if !ok {
		t.Fatalf("no handler for %s", actionType)
	}
	return handler(context.Background(), ectx, &rules.Action{Type: actionType, Parameters: params})
}

func TestRegisterDefaultsCoversBuiltins(t *testing.T) {
	registry := testRegistry(t, Options{})

	want := []rules.ActionType{
		rules.ActionUpdateField, rules.ActionAssignQueue, rules.ActionAssignUser,
		rules.ActionSetPriority, rules.ActionEscalate, rules.ActionAddNote,
		rules.ActionCreateTask, rules.ActionCreateFollowUp, rules.ActionSendNotification,
		rules.ActionDelay, rules.ActionRunScript, rules.ActionTriggerWebhook,
		rules.ActionSendEmail, rules.ActionSendSMS,
	}
	for _, at := range want {
		if _, ok := registry.Get(at); !ok {
			t.Errorf("builtin %s not registered", at)
		}
	}
}

func TestUpdateField(t *testing.T) {
	registry := testRegistry(t, Options{})

	tests := []struct {
		name    string
		field   string
		value   any
		check   func(t *testing.T, entity map[string]any)
		wantErr bool
	}{
		{
			name:  "top level",
			field: "status",
			value: "ESCALATED",
			check: func(t *testing.T, entity map[string]any) {
				if entity["status"] != "ESCALATED" {
					t.Errorf("status = %v", entity["status"])
				}
			},
		},
		{
			name:  "nested path creates maps",
			field: "workflow.stage",
			value: "appeal",
			check: func(t *testing.T, entity map[string]any) {
				wf, _ := entity["workflow"].(map[string]any)
				if wf == nil || wf["stage"] != "appeal" {
					t.Errorf("workflow = %v", entity["workflow"])
				}
			},
		},
		{
			name:    "path through scalar fails",
			field:   "status.inner",
			value:   "x",
			wantErr: true,
		},
		{
			name:    "missing field parameter",
			field:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ectx := handlerContext()
			params := map[string]any{"value": tt.value}
			if tt.field != "" {
				params["field"] = tt.field
			}
			_, err := run(t, registry, ectx, rules.ActionUpdateField, params)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, ectx.Entity)
		})
	}
}

func TestRecordMutationHandlers(t *testing.T) {
	registry := testRegistry(t, Options{})
	ectx := handlerContext()

	if _, err := run(t, registry, ectx, rules.ActionAssignQueue, map[string]any{"queue": "denials-high"}); err != nil {
		t.Fatalf("assign_queue: %v", err)
	}
	if _, err := run(t, registry, ectx, rules.ActionAssignUser, map[string]any{"userId": "u-42"}); err != nil {
		t.Fatalf("assign_user: %v", err)
	}
	if _, err := run(t, registry, ectx, rules.ActionSetPriority, map[string]any{"priority": "urgent"}); err != nil {
		t.Fatalf("set_priority: %v", err)
	}
	if _, err := run(t, registry, ectx, rules.ActionEscalate, nil); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	if ectx.Entity["queue"] != "denials-high" || ectx.Entity["assignedTo"] != "u-42" {
		t.Errorf("assignment fields = %v", ectx.Entity)
	}
	if ectx.Entity["priority"] != "urgent" || ectx.Entity["escalated"] != true {
		t.Errorf("priority/escalation fields = %v", ectx.Entity)
	}
	if ectx.Entity["escalationUrgency"] != "high" {
		t.Errorf("default urgency = %v", ectx.Entity["escalationUrgency"])
	}
}

func TestAddNoteAppends(t *testing.T) {
	registry := testRegistry(t, Options{})
	ectx := handlerContext()

	for _, note := range []string{"first", "second"} {
		if _, err := run(t, registry, ectx, rules.ActionAddNote, map[string]any{"note": note}); err != nil {
			t.Fatalf("add_note: %v", err)
		}
	}

	notes, _ := ectx.Entity["notes"].([]any)
	if len(notes) != 2 {
		t.Fatalf("notes = %v", ectx.Entity["notes"])
	}
	first, _ := notes[0].(map[string]any)
	if first["note"] != "first" || first["createdAt"] == "" {
		t.Errorf("note entry = %v", first)
	}
}

func TestCreateFollowUpDueDate(t *testing.T) {
	registry := testRegistry(t, Options{})
	ectx := handlerContext()

	out, err := run(t, registry, ectx, rules.ActionCreateFollowUp, map[string]any{"dueInDays": float64(14), "reason": "appeal deadline"})
	if err != nil {
		t.Fatalf("create_follow_up: %v", err)
	}
	if out["dueDate"] != "2026-03-30T12:00:00Z" {
		t.Errorf("dueDate = %v", out["dueDate"])
	}

	if _, err := run(t, registry, ectx, rules.ActionCreateFollowUp, map[string]any{"dueInDays": float64(0)}); err == nil {
		t.Error("zero dueInDays must fail")
	}
}

func TestCreateTask(t *testing.T) {
	registry := testRegistry(t, Options{})

	out, err := run(t, registry, handlerContext(), rules.ActionCreateTask, map[string]any{"title": "Review denial", "assignee": "u-1"})
	if err != nil {
		t.Fatalf("create_task: %v", err)
	}
	if out["taskId"] == "" || out["title"] != "Review denial" || out["entityId"] != "DEN-7" {
		t.Errorf("task = %v", out)
	}
}

func TestRunScript(t *testing.T) {
	t.Run("no runner configured", func(t *testing.T) {
		registry := testRegistry(t, Options{})
		if _, err := run(t, registry, handlerContext(), rules.ActionRunScript, map[string]any{"script": "x"}); err == nil {
			t.Error("expected error without a runner")
		}
	})

	t.Run("injected runner", func(t *testing.T) {
		registry := testRegistry(t, Options{
			ScriptRunner: func(_ context.Context, script string, _ map[string]any) (map[string]any, error) {
				return map[string]any{"ran": script}, nil
			},
		})
		out, err := run(t, registry, handlerContext(), rules.ActionRunScript, map[string]any{"script": "recalc"})
		if err != nil {
			t.Fatalf("run_script: %v", err)
		}
		if out["ran"] != "recalc" {
			t.Errorf("output = %v", out)
		}
	})
}

func TestTriggerWebhook(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		if r.Header.Get("X-Tenant") != "acme" {
			t.Errorf("header = %q", r.Header.Get("X-Tenant"))
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := outbound.NewClient(outbound.ClientConfig{}, slog.New(slog.DiscardHandler))
	registry := testRegistry(t, Options{Outbound: client})

	out, err := run(t, registry, handlerContext(), rules.ActionTriggerWebhook, map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"X-Tenant": "acme"},
	})
	if err != nil {
		t.Fatalf("trigger_webhook: %v", err)
	}
	if out["delivered"] != true {
		t.Errorf("output = %v", out)
	}
	if got["entityId"] != "DEN-7" || got["trigger"] == nil {
		t.Errorf("payload = %v", got)
	}
}

func TestSendEmail(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := outbound.NewClient(outbound.ClientConfig{}, slog.New(slog.DiscardHandler))

	t.Run("delivers via gateway", func(t *testing.T) {
		registry := testRegistry(t, Options{Outbound: client, EmailGatewayURL: server.URL})
		out, err := run(t, registry, handlerContext(), rules.ActionSendEmail, map[string]any{
			"to":      "biller@acme.example",
			"subject": "Denial needs review",
		})
		if err != nil {
			t.Fatalf("send_email: %v", err)
		}
		if out["delivered"] != true || got["to"] != "biller@acme.example" {
			t.Errorf("out=%v payload=%v", out, got)
		}
	})

	t.Run("no gateway configured", func(t *testing.T) {
		registry := testRegistry(t, Options{Outbound: client})
		if _, err := run(t, registry, handlerContext(), rules.ActionSendEmail, map[string]any{"to": "x@y"}); err == nil {
			t.Error("expected error without gateway")
		}
	})
}

func TestDelayHonorsCancellation(t *testing.T) {
	registry := testRegistry(t, Options{})
	handler, _ := registry.Get(rules.ActionDelay)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := handler(ctx, handlerContext(), &rules.Action{
		Type:       rules.ActionDelay,
		Parameters: map[string]any{"durationMs": float64(60000)},
	})
	if err == nil {
		t.Fatal("cancelled delay must return an error")
	}
}
