package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"revcycle-hq/callisto/pkg/audit"
)

// MemoryStorage keeps execution records in memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*audit.ExecutionRecord
}

// NewMemoryStorage creates an empty in-memory audit store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store appends a record.
func (s *MemoryStorage) Store(_ context.Context, record *audit.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Query returns matching records, newest first.
func (s *MemoryStorage) Query(_ context.Context, q audit.Query) ([]*audit.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*audit.ExecutionRecord
	for _, r := range s.records {
		if matches(r, q) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *MemoryStorage) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// DeleteOlderThan removes records started before the cutoff.
func (s *MemoryStorage) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if r.StartedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}

// DeleteOldest trims the store down to keep records.
func (s *MemoryStorage) DeleteOldest(_ context.Context, keep int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := int64(len(s.records)) - keep
	if excess <= 0 {
		return 0, nil
	}

	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].StartedAt.Before(s.records[j].StartedAt)
	})
	s.records = append([]*audit.ExecutionRecord(nil), s.records[excess:]...)
	return excess, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStorage) Close() error {
	return nil
}

func matches(r *audit.ExecutionRecord, q audit.Query) bool {
	if q.RuleID != "" && r.RuleID != q.RuleID {
		return false
	}
	if q.EntityType != "" && r.EntityType != q.EntityType {
		return false
	}
	if q.EntityID != "" && r.EntityID != q.EntityID {
		return false
	}
	if q.TenantID != "" && r.TenantID != q.TenantID {
		return false
	}
	if !q.Since.IsZero() && r.StartedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !r.StartedAt.Before(q.Until) {
		return false
	}
	if q.OnlyFailed && r.Error == "" {
		return false
	}
	return true
}
