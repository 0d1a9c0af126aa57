package trigger

import (
	"context"

	"revcycle-hq/callisto/pkg/rules"
)

// Source emits trigger events for the service to process.
type Source interface {
	// Events returns the channel events arrive on. The channel closes when
	// the source shuts down.
	Events() <-chan *rules.TriggerEvent

	// Start begins event production. It returns once production is running;
	// the source stops when ctx is cancelled or Close is called.
	Start(ctx context.Context) error

	// Close stops event production and closes the event channel.
	Close() error
}
