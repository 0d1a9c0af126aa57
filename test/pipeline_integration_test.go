//go:build integration

package test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"revcycle-hq/callisto/pkg/audit"
	auditrecorder "revcycle-hq/callisto/pkg/audit/recorder"
	auditstorage "revcycle-hq/callisto/pkg/audit/storage"
	"revcycle-hq/callisto/pkg/rules"
	"revcycle-hq/callisto/pkg/rules/engine"
	"revcycle-hq/callisto/pkg/rules/engine/handlers"
	"revcycle-hq/callisto/pkg/rules/source"
	"revcycle-hq/callisto/pkg/rules/store"
	"revcycle-hq/callisto/pkg/service"
	"revcycle-hq/callisto/pkg/trigger"
)

const denialReviewRule = `
rules:
  - id: denial-review
    name: High balance denial review
    isActive: true
    priority: 10
    trigger:
      type: on_denial_received
    conditions:
      - field: balanceAmount
        operator: greater_than
        value: 1000
    actions:
      - type: assign_queue
        order: 1
        parameters:
          queue: denial-review
      - type: set_priority
        order: 2
        parameters:
          priority: high
`

// TestEventPipeline runs the full path: YAML rules from disk, a trigger
// event through the service workers, and the execution landing in the
// sqlite audit trail.
func TestEventPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	// Rules from a YAML file
	rulePath := filepath.Join(tmpDir, "rules.yaml")
	if err := os.WriteFile(rulePath, []byte(denialReviewRule), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	fileSource := source.NewFileSource(rulePath, logger)
	loaded, err := fileSource.LoadRules(context.Background())
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(loaded))
	}

	cache := store.NewCache()
	cache.Set(loaded)

	// Audit trail on sqlite
	auditDB, err := auditstorage.NewSQLiteStorage(&auditstorage.SQLiteConfig{
		Path: filepath.Join(tmpDir, "audit.db"),
	}, logger)
	if err != nil {
		t.Fatalf("audit storage: %v", err)
	}
	defer auditDB.Close()

	recorder := auditrecorder.NewRecorder(auditDB, &auditrecorder.Config{
		Enabled:     true,
		AsyncBuffer: 16,
	}, logger)

	// Engine with the builtin handlers
	registry := engine.NewHandlerRegistry()
	handlers.RegisterDefaults(registry, handlers.Options{Logger: logger})

	eng, err := engine.New(engine.DefaultConfig(), registry, recorder, logger)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	events := trigger.NewChannelSource(4)
	svc, err := service.New(&service.Config{Workers: 1}, eng, cache, events, nil, logger)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	err = events.Publish(ctx, &rules.TriggerEvent{
		EntityType:  "claim",
		EntityID:    "CLM-1001",
		TriggerType: rules.TriggerOnDenialReceived,
		Entity: map[string]any{
			"id":            "CLM-1001",
			"status":        "denied",
			"balanceAmount": 1450.00,
		},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := events.Close(); err != nil {
		t.Fatalf("close source: %v", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("service did not drain in time")
	}

	// Recorder flush happens on Close.
	if err := recorder.Close(); err != nil {
		t.Fatalf("close recorder: %v", err)
	}

	records, err := auditDB.Query(context.Background(), audit.Query{RuleID: "denial-review"})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records))
	}

	record := records[0]
	if !record.ConditionsPassed {
		t.Error("expected conditions to pass")
	}
	if !record.ActionsExecuted {
		t.Error("expected actions to execute")
	}
	if record.EntityID != "CLM-1001" {
		t.Errorf("entity id = %q", record.EntityID)
	}
	if record.Detail == nil || len(record.Detail.ActionResults) != 2 {
		t.Fatalf("expected 2 action results in detail, got %+v", record.Detail)
	}
	for _, action := range record.Detail.ActionResults {
		if !action.Success {
			t.Errorf("action %s failed: %s", action.Type, action.Error)
		}
	}
}
