// Package redisbus implements the event bus on Redis Streams.
//
// Each topic is split into a fixed number of partition streams
// ("<topic>:p<n>"). An envelope goes to the partition chosen by its
// aggregate id, and every consumer group reads each partition with a single
// worker, which yields per-lead FIFO delivery.
//
// Several processes may run the same consumer group. A worker only reads a
// partition while it holds that partition's lease, a key set with NX and a
// TTL and renewed while the worker runs, so one instance at a time owns a
// partition. A new owner first claims the entries a previous owner left
// unacknowledged (XAUTOCLAIM, once they have been idle for claimMinIdle) and
// replays them before reading new entries, so a crash mid-batch redelivers
// in the original order.
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	envelopeField  = "envelope"
	pendingCursor  = "0"
	newCursor      = ">"
	claimStart     = "0-0"
	readBatchSize  = 32
	readErrBackoff = time.Second

	defaultLeaseTTL     = 10 * time.Second
	defaultLeaseRetry   = time.Second
	defaultClaimMinIdle = 30 * time.Second
)

var (
	acquireScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if not owner then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if owner == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Bus is a Redis Streams backed events.Bus.
type Bus struct {
	client    redis.UniversalClient
	deliverer *events.Deliverer
	block     time.Duration
	log       *logger.Logger
	instance  string

	// leaseTTL bounds how long a partition stays owned by an instance that
	// stopped renewing. claimMinIdle must exceed the longest handler run so
	// an entry is never claimed while its previous owner still works on it.
	leaseTTL     time.Duration
	leaseRetry   time.Duration
	claimMinIdle time.Duration

	mu      sync.Mutex
	subs    []*subscription
	running bool
	closed  bool
}

type subscription struct {
	topic    string
	consumer string
	handler  events.Handler
}

// New creates a bus on client. block bounds how long a partition worker
// waits for new entries; a negative block polls without waiting.
func New(client redis.UniversalClient, opts events.Options, block time.Duration) *Bus {
	d := events.NewDeliverer(opts)
	return &Bus{
		client:       client,
		deliverer:    d,
		block:        block,
		log:          d.Options().Log,
		instance:     uuid.NewString(),
		leaseTTL:     defaultLeaseTTL,
		leaseRetry:   defaultLeaseRetry,
		claimMinIdle: defaultClaimMinIdle,
	}
}

// Instance returns the id this bus uses in consumer names and leases.
func (b *Bus) Instance() string {
	return b.instance
}

// StreamKey returns the stream holding one partition of topic.
func StreamKey(topic string, partition int) string {
	return fmt.Sprintf("%s:p%d", topic, partition)
}

// LeaseKey returns the key whose holder owns one partition of topic for a
// consumer group.
func LeaseKey(topic string, partition int, consumer string) string {
	return fmt.Sprintf("lease:%s:%s", consumer, StreamKey(topic, partition))
}

// OffsetKey returns the per-topic publish counter key.
func OffsetKey(topic string) string {
	return "offset:" + topic
}

// Publish implements events.Bus. It returns once Redis has applied the
// XADD, and bumps the topic's offset counter in the same MULTI.
func (b *Bus) Publish(ctx context.Context, topic string, env events.Envelope) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return events.ErrBusClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", env.EventID, err)
	}

	key := StreamKey(topic, events.Partition(env.AggregateID, b.partitions()))
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: map[string]any{envelopeField: string(data)}})
		pipe.Incr(ctx, OffsetKey(topic))
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", env.EventID, key, err)
	}
	return nil
}

// Offset returns the number of envelopes published to topic.
func (b *Bus) Offset(ctx context.Context, topic string) (int64, error) {
	n, err := b.client.Get(ctx, OffsetKey(topic)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Subscribe implements events.Bus.
func (b *Bus) Subscribe(topic, consumer string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("subscribe %s/%s: bus already running", topic, consumer)
	}
	for _, s := range b.subs {
		if s.topic == topic && s.consumer == consumer {
			return fmt.Errorf("subscribe %s/%s: consumer already registered", topic, consumer)
		}
	}
	b.subs = append(b.subs, &subscription{topic: topic, consumer: consumer, handler: handler})
	return nil
}

// Run implements events.Bus.
func (b *Bus) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bus already running")
	}
	b.running = true
	subs := append([]*subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, sub := range subs {
		for p := 0; p < b.partitions(); p++ {
			if err := b.ensureGroup(ctx, StreamKey(sub.topic, p), sub.consumer); err != nil {
				return err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		for p := 0; p < b.partitions(); p++ {
			g.Go(func() error {
				b.consume(gctx, sub, p)
				return nil
			})
		}
	}

	<-ctx.Done()
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return g.Wait()
}

func (b *Bus) partitions() int {
	return b.deliverer.Options().Partitions
}

func (b *Bus) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// consume keeps competing for the partition lease and serves the partition
// while it holds it.
func (b *Bus) consume(ctx context.Context, sub *subscription, partition int) {
	lease := LeaseKey(sub.topic, partition, sub.consumer)
	for ctx.Err() == nil {
		held, err := b.acquire(ctx, lease)
		if err != nil && ctx.Err() == nil {
			b.log.Warn("partition lease acquire failed", "lease", lease, "instance", b.instance, "error", err)
		}
		if !held {
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.leaseRetry):
			}
			continue
		}
		b.own(ctx, sub, partition, lease)
	}
}

func (b *Bus) acquire(ctx context.Context, lease string) (bool, error) {
	n, err := acquireScript.Run(ctx, b.client, []string{lease}, b.instance, b.leaseTTL.Milliseconds()).Int64()
	return n == 1, err
}

// own serves the partition until ctx ends or the lease is lost.
func (b *Bus) own(ctx context.Context, sub *subscription, partition int, lease string) {
	leaseCtx, cancel := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		b.renew(leaseCtx, cancel, lease)
	}()
	defer func() {
		cancel()
		<-renewDone
		if err := releaseScript.Run(context.WithoutCancel(ctx), b.client, []string{lease}, b.instance).Err(); err != nil {
			b.log.Warn("partition lease release failed", "lease", lease, "instance", b.instance, "error", err)
		}
	}()

	b.log.Debug("partition lease acquired", "lease", lease, "instance", b.instance)
	if err := b.takeOver(leaseCtx, sub, partition); err != nil {
		if leaseCtx.Err() == nil {
			b.log.Warn("partition takeover failed", "lease", lease, "instance", b.instance, "error", err)
		}
		return
	}

	cursor := pendingCursor
	for leaseCtx.Err() == nil {
		next, err := b.poll(leaseCtx, sub, partition, cursor)
		if err != nil {
			if leaseCtx.Err() != nil {
				return
			}
			b.log.Warn("stream read failed", "topic", sub.topic, "consumer", sub.consumer, "partition", partition, "error", err)
			select {
			case <-leaseCtx.Done():
				return
			case <-time.After(readErrBackoff):
			}
			continue
		}
		cursor = next
	}
}

// renew extends the lease every third of its TTL and cancels the owner when
// the lease is gone or could not be renewed for a whole TTL.
func (b *Bus) renew(ctx context.Context, lost context.CancelFunc, lease string) {
	ticker := time.NewTicker(b.leaseTTL / 3)
	defer ticker.Stop()
	renewed := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := renewScript.Run(ctx, b.client, []string{lease}, b.instance, b.leaseTTL.Milliseconds()).Int64()
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			b.log.Warn("partition lease renew failed", "lease", lease, "instance", b.instance, "error", err)
			if time.Since(renewed) < b.leaseTTL {
				continue
			}
		case n == 1:
			renewed = time.Now()
			continue
		}
		b.log.Warn("partition lease lost", "lease", lease, "instance", b.instance)
		lost()
		return
	}
}

// takeOver moves every entry other consumers of the group left pending on
// the partition to this worker. Entries that are not yet idle for
// claimMinIdle may still be in a previous owner's handler, so it waits for
// them rather than reading past them.
func (b *Bus) takeOver(ctx context.Context, sub *subscription, partition int) error {
	stream := StreamKey(sub.topic, partition)
	me := b.workerName(sub.consumer, partition)
	for {
		start := claimStart
		for {
			_, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    sub.consumer,
				Consumer: me,
				MinIdle:  b.claimMinIdle,
				Start:    start,
				Count:    readBatchSize,
			}).Result()
			if err != nil {
				return fmt.Errorf("claim pending entries on %s: %w", stream, err)
			}
			if next == "" || next == claimStart {
				break
			}
			start = next
		}

		pending, err := b.client.XPending(ctx, stream, sub.consumer).Result()
		if err != nil {
			return fmt.Errorf("pending summary of %s: %w", stream, err)
		}
		var others int64
		for name, n := range pending.Consumers {
			if name != me {
				others += n
			}
		}
		if others == 0 {
			return nil
		}

		b.log.Info("waiting for entries of the previous partition owner", "stream", stream, "consumer", sub.consumer, "entries", others)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.leaseRetry):
		}
	}
}

// poll reads one batch for a partition and returns the cursor for the next
// read. Reading with the pending cursor replays this worker's unacknowledged
// entries; once they are drained the worker switches to new entries. A
// delivery that may not be acknowledged sends the worker back to the
// pending list so later entries of the batch are not processed out of order.
func (b *Bus) poll(ctx context.Context, sub *subscription, partition int, cursor string) (string, error) {
	stream := StreamKey(sub.topic, partition)
	block := b.block
	if cursor == pendingCursor {
		block = -1
	}

	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    sub.consumer,
		Consumer: b.workerName(sub.consumer, partition),
		Streams:  []string{stream, cursor},
		Count:    readBatchSize,
		Block:    block,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return cursor, err
	}

	var msgs []redis.XMessage
	for _, s := range res {
		msgs = append(msgs, s.Messages...)
	}
	if len(msgs) == 0 {
		if cursor == pendingCursor {
			return newCursor, nil
		}
		return cursor, nil
	}

	ackCtx := context.WithoutCancel(ctx)
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return pendingCursor, err
		}
		env, err := decodeMessage(msg)
		if err != nil {
			b.log.Error("undecodable stream entry", "stream", stream, "id", msg.ID, "error", err)
			if !b.deliverer.DeadLetterUndecodable(ctx, sub.topic, sub.consumer, stream+"/"+msg.ID, rawEntry(msg), err) {
				return pendingCursor, nil
			}
			if err := b.client.XAck(ackCtx, stream, sub.consumer, msg.ID).Err(); err != nil {
				return pendingCursor, fmt.Errorf("ack %s: %w", msg.ID, err)
			}
			continue
		}

		if !b.deliverer.Deliver(ctx, sub.topic, sub.consumer, sub.handler, env) {
			return pendingCursor, nil
		}
		if err := b.client.XAck(ackCtx, stream, sub.consumer, msg.ID).Err(); err != nil {
			return pendingCursor, fmt.Errorf("ack %s: %w", msg.ID, err)
		}
	}
	return cursor, nil
}

func (b *Bus) workerName(consumer string, partition int) string {
	return fmt.Sprintf("%s-p%d-%s", consumer, partition, b.instance)
}

// rawEntry renders a stream entry for a dead letter: the envelope field when
// it is a string, every field otherwise.
func rawEntry(msg redis.XMessage) string {
	if raw, ok := msg.Values[envelopeField].(string); ok {
		return raw
	}
	data, err := json.Marshal(msg.Values)
	if err != nil {
		return fmt.Sprint(msg.Values)
	}
	return string(data)
}

func decodeMessage(msg redis.XMessage) (events.Envelope, error) {
	raw, ok := msg.Values[envelopeField].(string)
	if !ok {
		return events.Envelope{}, fmt.Errorf("entry %s has no %s field", msg.ID, envelopeField)
	}
	var env events.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return events.Envelope{}, fmt.Errorf("entry %s: %w", msg.ID, err)
	}
	return env, nil
}

var _ events.Bus = (*Bus)(nil)
