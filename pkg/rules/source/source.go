package source

import (
	"context"

	"revcycle-hq/callisto/pkg/rules"
)

// Source provides rule definitions.
type Source interface {
	// LoadRules loads all rules from the source. Invalid rules are
	// skipped with a log entry; a source that can load nothing returns
	// an error.
	LoadRules(ctx context.Context) ([]*rules.Rule, error)

	// Watch blocks, invoking onChange whenever the underlying rule set
	// may have changed, until the context is cancelled.
	Watch(ctx context.Context, onChange func()) error
}
