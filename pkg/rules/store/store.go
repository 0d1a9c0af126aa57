package store

import (
	"context"
	"errors"

	"revcycle-hq/callisto/pkg/rules"
)

// ErrNotFound indicates the requested rule does not exist.
var ErrNotFound = errors.New("rule not found")

// Filter narrows List results. Zero values match everything.
type Filter struct {
	// Category filters by rule category.
	Category string

	// TriggerType filters by trigger type.
	TriggerType rules.TriggerType

	// Tag requires the rule to carry the given tag.
	Tag string

	// ActiveOnly drops inactive rules.
	ActiveOnly bool
}

// matches applies the filter to one rule.
func (f Filter) matches(r *rules.Rule) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.TriggerType != "" && r.Trigger.Type != f.TriggerType {
		return false
	}
	if f.ActiveOnly && !r.IsActive {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range r.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Store persists rule definitions.
type Store interface {
	// Put inserts or replaces a rule by ID.
	Put(ctx context.Context, rule *rules.Rule) error

	// Get returns the rule with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*rules.Rule, error)

	// Delete removes a rule. Deleting an absent rule is ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns rules matching the filter, ordered by priority then name.
	List(ctx context.Context, filter Filter) ([]*rules.Rule, error)

	// Close releases backend resources.
	Close() error
}
