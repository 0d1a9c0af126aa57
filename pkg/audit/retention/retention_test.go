package retention

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"revcycle-hq/callisto/pkg/audit"
	"revcycle-hq/callisto/pkg/audit/storage"
)

func seedRecords(t *testing.T, store audit.Storage, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.Store(context.Background(), &audit.ExecutionRecord{
			ID:        fmt.Sprintf("exec-%03d", i),
			RuleID:    "rule-1",
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed record %d: %v", i, err)
		}
	}
}

func TestPruneByAge(t *testing.T) {
	store := storage.NewMemoryStorage()
	// 5 records older than 30 days, 5 recent.
	seedRecords(t, store, 5, time.Now().AddDate(0, 0, -60))
	seedRecords(t, store, 5, time.Now().Add(-time.Hour))

	p := NewPruner(store, &Config{RetentionDays: 30}, slog.New(slog.DiscardHandler))
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("deleted %d, want 5", deleted)
	}

	count, _ := store.Count(context.Background())
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestPruneByCount(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedRecords(t, store, 10, time.Now().Add(-time.Hour))

	p := NewPruner(store, &Config{MaxRecords: 4}, slog.New(slog.DiscardHandler))
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 6 {
		t.Fatalf("deleted %d, want 6", deleted)
	}

	records, _ := store.Query(context.Background(), audit.Query{})
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	// Newest survive.
	if records[0].ID != "exec-009" {
		t.Errorf("newest survivor = %s, want exec-009", records[0].ID)
	}
}

func TestPruneBothPhases(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedRecords(t, store, 3, time.Now().AddDate(0, 0, -60))
	seedRecords(t, store, 7, time.Now().Add(-time.Hour))

	p := NewPruner(store, &Config{RetentionDays: 30, MaxRecords: 5}, slog.New(slog.DiscardHandler))
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	// 3 by age, then 2 more to get down to 5.
	if deleted != 5 {
		t.Fatalf("deleted %d, want 5", deleted)
	}
	count, _ := store.Count(context.Background())
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestPruneDisabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedRecords(t, store, 5, time.Now().AddDate(0, 0, -365))

	p := NewPruner(store, &Config{}, slog.New(slog.DiscardHandler))
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted %d, want 0 with retention disabled", deleted)
	}
}

func TestSchedulerInvalidExpression(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: "not a cron"}, slog.New(slog.DiscardHandler))
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), &Config{RetentionDays: 30, PruneSchedule: "0 3 * * *"}, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.scheduler.IsRunning() {
		t.Fatal("scheduler not running after Start")
	}
	if next := p.NextPruning(); next == nil || !next.After(time.Now()) {
		t.Errorf("NextPruning = %v, want a future time", next)
	}

	p.Stop()
	if p.scheduler.IsRunning() {
		t.Fatal("scheduler still running after Stop")
	}
}

func TestSchedulerEmptyScheduleIsNoOp(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: ""}, slog.New(slog.DiscardHandler))
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.scheduler.IsRunning() {
		t.Fatal("scheduler should not run without a schedule")
	}
}
