package events

import (
	"context"
	"sync"
)

// Router dispatches envelopes to handlers registered per event type.
// Envelopes of unregistered types are acknowledged without effect, so one
// topic can carry types a given consumer does not care about.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Handler)}
}

// Register binds handler to eventType, replacing any previous binding.
func (r *Router) Register(eventType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[eventType] = handler
}

// HandleFunc binds fn to eventType.
func (r *Router) HandleFunc(eventType string, fn func(ctx context.Context, env Envelope) error) {
	r.Register(eventType, HandlerFunc(fn))
}

// Handle implements Handler.
func (r *Router) Handle(ctx context.Context, env Envelope) error {
	r.mu.RLock()
	h, ok := r.routes[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return h.Handle(ctx, env)
}

// Types returns the registered event types.
func (r *Router) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.routes))
	for t := range r.routes {
		types = append(types, t)
	}
	return types
}
