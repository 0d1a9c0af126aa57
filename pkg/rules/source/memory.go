package source

import (
	"context"
	"sync"

	"revcycle-hq/callisto/pkg/rules"
)

// MemorySource serves a fixed rule set. Replace swaps the set and notifies
// any active watcher, which makes it useful for tests exercising reload
// paths.
type MemorySource struct {
	mu       sync.RWMutex
	rules    []*rules.Rule
	onChange func()
}

// NewMemorySource creates a source over the given rules.
func NewMemorySource(list []*rules.Rule) *MemorySource {
	return &MemorySource{rules: list}
}

// LoadRules returns the current rule set.
func (s *MemorySource) LoadRules(_ context.Context) ([]*rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*rules.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// Replace swaps the rule set and fires the watcher callback.
func (s *MemorySource) Replace(list []*rules.Rule) {
	s.mu.Lock()
	s.rules = list
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Watch registers the change callback and blocks until cancellation.
func (s *MemorySource) Watch(ctx context.Context, onChange func()) error {
	s.mu.Lock()
	s.onChange = onChange
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	s.onChange = nil
	s.mu.Unlock()
	return nil
}
