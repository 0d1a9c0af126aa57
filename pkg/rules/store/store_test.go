package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"revcycle-hq/callisto/pkg/rules"
)

func storeRule(id string, mutate func(*rules.Rule)) *rules.Rule {
	r := &rules.Rule{
		ID:       id,
		Name:     "rule " + id,
		Trigger:  rules.Trigger{Type: rules.TriggerOnUpdate},
		Priority: 100,
		IsActive: true,
		Version:  1,
		Conditions: []*rules.ConditionNode{
			{Field: "status", Operator: rules.OpEquals, Value: "DENIED"},
		},
		Actions: []*rules.Action{
			{Type: rules.ActionAddNote, Order: 1, Parameters: map[string]any{"note": "check"}},
		},
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

// backends under test
func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(SQLiteConfig{DBPath: filepath.Join(t.TempDir(), "rules.db")})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreCRUD(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rule := storeRule("r1", nil)
			if err := s.Put(ctx, rule); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, err := s.Get(ctx, "r1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Name != rule.Name || len(got.Conditions) != 1 || len(got.Actions) != 1 {
				t.Errorf("round-trip lost fields: %+v", got)
			}

			// Update in place.
			rule.Priority = 5
			rule.Version = 2
			if err := s.Put(ctx, rule); err != nil {
				t.Fatalf("update: %v", err)
			}
			got, err = s.Get(ctx, "r1")
			if err != nil {
				t.Fatalf("get after update: %v", err)
			}
			if got.Priority != 5 || got.Version != 2 {
				t.Errorf("update not applied: priority=%d version=%d", got.Priority, got.Version)
			}

			if err := s.Delete(ctx, "r1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := s.Get(ctx, "r1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("get deleted = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, "r1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("double delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreListFilters(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			seed := []*rules.Rule{
				storeRule("a", func(r *rules.Rule) { r.Name = "alpha"; r.Priority = 20; r.Category = "denials" }),
				storeRule("b", func(r *rules.Rule) { r.Name = "beta"; r.Priority = 10; r.Category = "denials"; r.Tags = []string{"sla"} }),
				storeRule("c", func(r *rules.Rule) {
					r.Name = "gamma"
					r.Priority = 10
					r.Category = "payments"
					r.Trigger.Type = rules.TriggerOnPaymentPosted
					r.IsActive = false
				}),
			}
			for _, rule := range seed {
				if err := s.Put(ctx, rule); err != nil {
					t.Fatalf("put %s: %v", rule.ID, err)
				}
			}

			all, err := s.List(ctx, Filter{})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("list all = %d rules", len(all))
			}
			// priority asc, name tiebreak
			if all[0].ID != "b" || all[1].ID != "c" || all[2].ID != "a" {
				t.Errorf("order = %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
			}

			byCategory, err := s.List(ctx, Filter{Category: "denials"})
			if err != nil {
				t.Fatalf("list category: %v", err)
			}
			if len(byCategory) != 2 {
				t.Errorf("category filter = %d rules", len(byCategory))
			}

			byTrigger, err := s.List(ctx, Filter{TriggerType: rules.TriggerOnPaymentPosted})
			if err != nil {
				t.Fatalf("list trigger: %v", err)
			}
			if len(byTrigger) != 1 || byTrigger[0].ID != "c" {
				t.Errorf("trigger filter = %+v", byTrigger)
			}

			active, err := s.List(ctx, Filter{ActiveOnly: true})
			if err != nil {
				t.Fatalf("list active: %v", err)
			}
			if len(active) != 2 {
				t.Errorf("active filter = %d rules", len(active))
			}

			byTag, err := s.List(ctx, Filter{Tag: "sla"})
			if err != nil {
				t.Fatalf("list tag: %v", err)
			}
			if len(byTag) != 1 || byTag[0].ID != "b" {
				t.Errorf("tag filter = %+v", byTag)
			}
		})
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rule := storeRule("r1", nil)
	if err := s.Put(ctx, rule); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Mutating the original after Put must not affect the stored copy.
	rule.Name = "mutated"
	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name == "mutated" {
		t.Error("store aliases caller's rule")
	}

	// Mutating a returned rule must not affect the store.
	got.Priority = 999
	again, _ := s.Get(ctx, "r1")
	if again.Priority == 999 {
		t.Error("store aliases returned rule")
	}
}

func TestSQLiteStorePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.db")

	s, err := NewSQLiteStore(SQLiteConfig{DBPath: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(ctx, storeRule("r1", nil)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLiteStore(SQLiteConfig{DBPath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Name != "rule r1" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestCacheSnapshot(t *testing.T) {
	cache := NewCache()
	if cache.Version() != 0 || cache.Snapshot() != nil {
		t.Fatal("new cache must be empty at version 0")
	}

	first := []*rules.Rule{storeRule("a", nil)}
	cache.Set(first)

	snap := cache.Snapshot()
	if len(snap) != 1 || cache.Version() != 1 {
		t.Fatalf("snapshot = %d rules, version %d", len(snap), cache.Version())
	}

	// A later Set must not change an already-captured snapshot.
	cache.Set([]*rules.Rule{storeRule("a", nil), storeRule("b", nil)})
	if len(snap) != 1 {
		t.Error("captured snapshot changed after Set")
	}
	if len(cache.Snapshot()) != 2 || cache.Version() != 2 {
		t.Errorf("new snapshot = %d rules, version %d", len(cache.Snapshot()), cache.Version())
	}
}

func TestCacheReload(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"a", "b"} {
		if err := s.Put(ctx, storeRule(id, nil)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	cache := NewCache()
	if err := cache.Reload(ctx, s); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(cache.Snapshot()) != 2 {
		t.Errorf("snapshot = %d rules", len(cache.Snapshot()))
	}
	if cache.LoadedAt().IsZero() {
		t.Error("loadedAt not set")
	}
}
