package trigger

import (
	"context"
	"errors"
	"sync"

	"revcycle-hq/callisto/pkg/rules"
)

// ErrSourceClosed is returned when publishing to a closed source.
var ErrSourceClosed = errors.New("trigger: source closed")

// ChannelSource is a programmatic event feed. Producers of entity changes
// (API handlers, ingestion pipelines, tests) publish events; the service
// consumes them from Events.
type ChannelSource struct {
	events chan *rules.TriggerEvent

	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	pending sync.WaitGroup
}

// NewChannelSource creates a channel source with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSource{
		events: make(chan *rules.TriggerEvent, buffer),
		done:   make(chan struct{}),
	}
}

// Publish enqueues one event, blocking while the buffer is full. It returns
// ErrSourceClosed after Close and the context error on cancellation.
func (s *ChannelSource) Publish(ctx context.Context, event *rules.TriggerEvent) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	s.pending.Add(1)
	s.mu.Unlock()
	defer s.pending.Done()

	select {
	case s.events <- event:
		return nil
	case <-s.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the event channel.
func (s *ChannelSource) Events() <-chan *rules.TriggerEvent {
	return s.events
}

// Start is a no-op; a channel source produces only what is published.
func (s *ChannelSource) Start(_ context.Context) error {
	return nil
}

// Close stops the source and closes the event channel. In-flight Publish
// calls finish (or fail with ErrSourceClosed) before the channel closes.
func (s *ChannelSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.pending.Wait()
	close(s.events)
	return nil
}
