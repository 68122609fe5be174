// Package outbox stores outgoing envelopes in the same transaction as the
// state change that produced them and relays them to the bus afterwards.
//
// The stored envelope is published as-is on every attempt, so a retried
// publish always carries the original event id.
package outbox

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/platform/events"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
)

// Record is one outgoing envelope.
type Record struct {
	Seq         int64
	Topic       string
	EventID     string
	AggregateID string
	Envelope    events.Envelope
	Status      Status
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Writer appends envelopes inside a unit of work.
type Writer interface {
	Enqueue(ctx context.Context, topic string, env events.Envelope) error
}

// Store is the relay side of the outbox.
type Store interface {
	// Drain hands up to limit pending records, oldest first, to publish and
	// marks each one published when publish returns nil. The first failure
	// stops the batch so later records of the same lead are not published
	// ahead of it. Drain returns how many records were published.
	Drain(ctx context.Context, limit int, publish func(Record) error) (int, error)
}

// Emit wraps event in a new envelope and enqueues it on topic.
func Emit(ctx context.Context, w Writer, topic string, event events.Event) (events.Envelope, error) {
	env, err := events.NewEnvelope(event)
	if err != nil {
		return events.Envelope{}, err
	}
	if err := w.Enqueue(ctx, topic, env); err != nil {
		return events.Envelope{}, fmt.Errorf("enqueue %s: %w", env.Type, err)
	}
	return env, nil
}
