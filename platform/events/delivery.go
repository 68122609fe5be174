package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/platform/logger"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPartitions        = 16
	defaultMaxDeliveries     = 5
	defaultRedeliveryBackoff = 500 * time.Millisecond
)

var tracer = otel.Tracer("leadflow_backend/platform/events")

// Partition maps an aggregate id onto one of n partitions. Every transport
// uses it, so all envelopes of one lead land on the same worker.
func Partition(aggregateID string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(aggregateID) % uint64(n))
}

// Options configures delivery for a bus implementation.
type Options struct {
	Partitions        int
	MaxDeliveries     int
	RedeliveryBackoff time.Duration
	DeadLetters       DeadLetterSink
	Log               *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Partitions < 1 {
		o.Partitions = defaultPartitions
	}
	if o.MaxDeliveries < 1 {
		o.MaxDeliveries = defaultMaxDeliveries
	}
	if o.RedeliveryBackoff < 0 {
		o.RedeliveryBackoff = 0
	} else if o.RedeliveryBackoff == 0 {
		o.RedeliveryBackoff = defaultRedeliveryBackoff
	}
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	return o
}

// permanent is implemented by errors that no amount of redelivery can fix.
type permanent interface {
	Permanent() bool
}

// IsPermanent reports whether err (or anything it wraps) is marked permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

// Deliverer runs one envelope through a handler with bounded redelivery.
// Both bus transports share it so the retry-then-dead-letter policy is the
// same regardless of broker.
type Deliverer struct {
	opts Options
}

// NewDeliverer creates a deliverer with opts, applying defaults.
func NewDeliverer(opts Options) *Deliverer {
	return &Deliverer{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (d *Deliverer) Options() Options {
	return d.opts
}

// Deliver hands env to handler until it succeeds, fails permanently, or the
// delivery budget is exhausted; the latter two dead-letter the envelope.
// It returns true when the transport may acknowledge env. A false return
// means env must stay unacknowledged and be delivered again later.
//
// The handler runs on a context detached from ctx cancellation so that a
// shutdown never interrupts an atomic unit of work midway.
func (d *Deliverer) Deliver(ctx context.Context, topic, consumer string, handler Handler, env Envelope) bool {
	handlerCtx := logger.ContextWithEvent(context.WithoutCancel(ctx), consumer, env.EventID)

	var lastErr error
	attempt := 0
	for attempt < d.opts.MaxDeliveries {
		attempt++
		lastErr = d.invoke(handlerCtx, topic, consumer, handler, env, attempt)
		if lastErr == nil {
			return true
		}
		if IsPermanent(lastErr) {
			break
		}

		d.opts.Log.Warn("event handler failed, redelivering",
			"topic", topic, "consumer", consumer, "event_id", env.EventID,
			"event_type", env.Type, "attempt", attempt, "error", lastErr)

		if attempt >= d.opts.MaxDeliveries {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d.opts.RedeliveryBackoff * time.Duration(attempt)):
		}
	}

	return d.deadLetter(handlerCtx, topic, consumer, env, attempt, lastErr)
}

func (d *Deliverer) invoke(ctx context.Context, topic, consumer string, handler Handler, env Envelope, attempt int) (err error) {
	ctx, span := tracer.Start(ctx, "consume "+env.Type,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.consumer.group.name", consumer),
			attribute.String("messaging.message.id", env.EventID),
			attribute.String("leadflow.aggregate_id", env.AggregateID),
			attribute.Int("leadflow.delivery_attempt", attempt),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return handler.Handle(ctx, env)
}

// TypeUndecodable marks a dead letter built from a transport entry that did
// not decode into an Envelope. Its payload is the raw entry as a JSON string.
const TypeUndecodable = "UndecodableEntry"

// DeadLetterUndecodable dead-letters a transport entry that never became an
// envelope, keeping its raw content for inspection. The return value has the
// same meaning as for Deliver.
func (d *Deliverer) DeadLetterUndecodable(ctx context.Context, topic, consumer, entryID, raw string, cause error) bool {
	payload, err := json.Marshal(raw)
	if err != nil {
		payload = []byte(`""`)
	}
	env := Envelope{
		EventID:    entryID,
		Type:       TypeUndecodable,
		Version:    SchemaVersion,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	return d.deadLetter(logger.ContextWithEvent(context.WithoutCancel(ctx), consumer, entryID), topic, consumer, env, 1, cause)
}

func (d *Deliverer) deadLetter(ctx context.Context, topic, consumer string, env Envelope, attempts int, cause error) bool {
	d.opts.Log.DeadLettered(topic, consumer, env.EventID, attempts, cause)
	if d.opts.DeadLetters == nil {
		return true
	}

	dl := DeadLetter{
		Topic:    topic,
		Consumer: consumer,
		Envelope: env,
		Reason:   cause.Error(),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
	if err := d.opts.DeadLetters.DeadLetter(ctx, dl); err != nil {
		d.opts.Log.Error("dead-letter sink failed", "topic", topic, "consumer", consumer, "event_id", env.EventID, "error", err)
		return false
	}
	return true
}
