// Package events provides event bus infrastructure for decoupled,
// event-driven communication between services.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrBusClosed is returned by Publish once the bus has begun shutting down.
var ErrBusClosed = errors.New("event bus closed")

// Event is the base interface all domain events must implement.
type Event interface {
	// EventName returns a unique identifier for the event type.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
	// AggregateKey returns the identifier the event is ordered under.
	AggregateKey() string
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Envelope is the unit the transport carries. EventID is minted once per
// logical event; every retry of that event must carry the same EventID.
type Envelope struct {
	EventID     string          `json:"eventId"`
	AggregateID string          `json:"aggregateId"`
	Type        string          `json:"type"`
	Version     int             `json:"version"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
}

// SchemaVersion is the envelope schema version stamped on new envelopes.
const SchemaVersion = 1

// NewEnvelope wraps event in an envelope with a fresh event id.
func NewEnvelope(event Event) (Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", event.EventName(), err)
	}
	occurredAt := event.OccurredAt()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return Envelope{
		EventID:     uuid.NewString(),
		AggregateID: event.AggregateKey(),
		Type:        event.EventName(),
		Version:     SchemaVersion,
		OccurredAt:  occurredAt,
		Payload:     payload,
	}, nil
}

// Decode unmarshals the envelope payload into T.
func Decode[T any](env Envelope) (T, error) {
	var out T
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, &decodeError{eventType: env.Type, err: err}
	}
	return out, nil
}

// decodeError marks a payload that can never be handled, so retrying it is
// pointless.
type decodeError struct {
	eventType string
	err       error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.eventType, e.err)
}

func (e *decodeError) Unwrap() error   { return e.err }
func (e *decodeError) Permanent() bool { return true }

// Handler processes delivered envelopes.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Publisher hands envelopes to the transport.
type Publisher interface {
	// Publish returns nil only once the transport has accepted env.
	Publish(ctx context.Context, topic string, env Envelope) error
}

// Bus is the interface for publishing and subscribing to domain events.
//
// Delivery is at-least-once. Envelopes sharing an AggregateID are delivered
// to one worker of a consumer group in publish order; envelopes with
// different AggregateIDs have no relative ordering.
type Bus interface {
	Publisher

	// Subscribe registers handler for topic under the consumer group name.
	// Subscriptions must be registered before Run.
	Subscribe(topic, consumer string, handler Handler) error

	// Run consumes until ctx is cancelled. In-flight handlers finish before
	// Run returns.
	Run(ctx context.Context) error
}

// DeadLetter is an envelope that exhausted its delivery budget or failed
// permanently. The original envelope is kept whole for replay.
type DeadLetter struct {
	Topic    string
	Consumer string
	Envelope Envelope
	Reason   string
	Attempts int
	FailedAt time.Time
}

// DeadLetterSink receives dead-lettered envelopes.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl DeadLetter) error
}

// DeadLetterFunc adapts a function to DeadLetterSink.
type DeadLetterFunc func(ctx context.Context, dl DeadLetter) error

// DeadLetter calls the underlying function.
func (f DeadLetterFunc) DeadLetter(ctx context.Context, dl DeadLetter) error {
	return f(ctx, dl)
}
