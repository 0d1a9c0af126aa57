package engine

import (
	"context"
	"sort"
	"sync"

	"revcycle-hq/callisto/pkg/rules"
)

// ActionHandler performs the side effect behind one action type. The
// returned map becomes the action result's output. Handlers may mutate
// ectx.Entity; the orchestrator guarantees each rule works on its own
// copy, so mutations never leak across rules.
type ActionHandler func(ctx context.Context, ectx *ExecutionContext, action *rules.Action) (map[string]any, error)

// HandlerRegistry maps action types to handlers. Registration is open so
// callers can add domain-specific types next to the builtins.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[rules.ActionType]ActionHandler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[rules.ActionType]ActionHandler)}
}

// Register installs a handler for an action type, replacing any previous
// registration.
func (r *HandlerRegistry) Register(actionType rules.ActionType, handler ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[actionType] = handler
}

// Get returns the handler for an action type.
func (r *HandlerRegistry) Get(actionType rules.ActionType) (ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[actionType]
	return h, ok
}

// Types returns the registered action types in sorted order.
func (r *HandlerRegistry) Types() []rules.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]rules.ActionType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
