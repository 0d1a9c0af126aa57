package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"revcycle-hq/callisto/pkg/rules"
)

// MemoryStore is an in-process Store. Rules are deep-copied on the way in
// and out so callers can never alias stored state.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]*rules.Rule
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]*rules.Rule)}
}

// Put inserts or replaces a rule.
func (s *MemoryStore) Put(_ context.Context, rule *rules.Rule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("rule must have an id")
	}
	copied, err := copyRule(rule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = copied
	return nil
}

// Get returns a copy of the rule with the given ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*rules.Rule, error) {
	s.mu.RLock()
	rule, ok := s.rules[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyRule(rule)
}

// Delete removes a rule.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.rules, id)
	return nil
}

// List returns matching rules ordered by priority, then name.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*rules.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if !filter.matches(rule) {
			continue
		}
		copied, err := copyRule(rule)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	sortRules(out)
	return out, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func sortRules(list []*rules.Rule) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].Name < list[j].Name
	})
}

// copyRule deep-copies a rule through its JSON form.
func copyRule(rule *rules.Rule) (*rules.Rule, error) {
	data, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("copy rule %s: %w", rule.ID, err)
	}
	var out rules.Rule
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy rule %s: %w", rule.ID, err)
	}
	return &out, nil
}
