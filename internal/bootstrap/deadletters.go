package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"leadflow_backend/platform/events"
)

// deadLetterRouter sends each dead letter to the store of the service that
// owns the failing consumer. A process running one service routes
// everything to its fallback.
type deadLetterRouter struct {
	mu         sync.RWMutex
	byConsumer map[string]events.DeadLetterSink
	fallback   events.DeadLetterSink
}

func newDeadLetterRouter() *deadLetterRouter {
	return &deadLetterRouter{byConsumer: make(map[string]events.DeadLetterSink)}
}

func (r *deadLetterRouter) route(sink events.DeadLetterSink, consumers ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallback == nil {
		r.fallback = sink
	}
	for _, c := range consumers {
		r.byConsumer[c] = sink
	}
}

func (r *deadLetterRouter) DeadLetter(ctx context.Context, dl events.DeadLetter) error {
	r.mu.RLock()
	sink, ok := r.byConsumer[dl.Consumer]
	if !ok {
		sink = r.fallback
	}
	r.mu.RUnlock()

	if sink == nil {
		return fmt.Errorf("no dead-letter store for consumer %s", dl.Consumer)
	}
	return sink.DeadLetter(ctx, dl)
}
