package store

import (
	"context"
	"sync"
	"time"

	"revcycle-hq/callisto/pkg/rules"
)

// Cache holds an immutable snapshot of the rule set. The service captures
// one snapshot per trigger batch, so every event in the batch evaluates
// against the same rules even while a reload swaps in a new set.
type Cache struct {
	mu       sync.RWMutex
	rules    []*rules.Rule
	version  int64
	loadedAt time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Set replaces the cached rule set atomically and bumps the version.
func (c *Cache) Set(list []*rules.Rule) {
	snapshot := make([]*rules.Rule, len(list))
	copy(snapshot, list)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = snapshot
	c.version++
	c.loadedAt = time.Now()
}

// Snapshot returns the current rule set. The returned slice is never
// mutated after publication; callers must treat it as read-only.
func (c *Cache) Snapshot() []*rules.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

// Version returns the snapshot generation, starting at 0 for an empty
// cache and incrementing on every Set.
func (c *Cache) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// LoadedAt returns when the current snapshot was installed.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Reload pulls all rules from the store and installs them as the new
// snapshot.
func (c *Cache) Reload(ctx context.Context, s Store) error {
	list, err := s.List(ctx, Filter{})
	if err != nil {
		return err
	}
	c.Set(list)
	return nil
}
