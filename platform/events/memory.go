package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// InMemoryBus is a partitioned, in-process Bus. It gives the same ordering
// and redelivery semantics as the Redis transport without durability, and is
// used for single-process deployments and tests.
type InMemoryBus struct {
	deliverer *Deliverer

	mu      sync.Mutex
	subs    map[string][]*memorySubscription
	offsets map[string]int64
	pending int
	closed  bool
	running bool
}

type memorySubscription struct {
	topic      string
	consumer   string
	handler    Handler
	partitions []*memoryPartition
}

type memoryPartition struct {
	mu    sync.Mutex
	queue []Envelope
	wake  chan struct{}
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(opts Options) *InMemoryBus {
	return &InMemoryBus{
		deliverer: NewDeliverer(opts),
		subs:      make(map[string][]*memorySubscription),
		offsets:   make(map[string]int64),
	}
}

// Subscribe implements Bus.
func (b *InMemoryBus) Subscribe(topic, consumer string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("subscribe %s/%s: bus already running", topic, consumer)
	}
	for _, s := range b.subs[topic] {
		if s.consumer == consumer {
			return fmt.Errorf("subscribe %s/%s: consumer already registered", topic, consumer)
		}
	}

	n := b.deliverer.Options().Partitions
	sub := &memorySubscription{topic: topic, consumer: consumer, handler: handler, partitions: make([]*memoryPartition, n)}
	for i := range sub.partitions {
		sub.partitions[i] = &memoryPartition{wake: make(chan struct{}, 1)}
	}
	b.subs[topic] = append(b.subs[topic], sub)
	return nil
}

// Publish implements Bus. Each consumer group receives its own copy.
func (b *InMemoryBus) Publish(_ context.Context, topic string, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	b.offsets[topic]++

	n := b.deliverer.Options().Partitions
	for _, sub := range b.subs[topic] {
		p := sub.partitions[Partition(env.AggregateID, n)]
		p.mu.Lock()
		p.queue = append(p.queue, env)
		p.mu.Unlock()
		b.pending++
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Offset returns the number of envelopes ever published to topic.
func (b *InMemoryBus) Offset(topic string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offsets[topic]
}

// Run implements Bus. It starts one worker per subscription partition and
// returns once every worker has finished its in-flight envelope.
func (b *InMemoryBus) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bus already running")
	}
	b.running = true
	var subs []*memorySubscription
	for _, list := range b.subs {
		subs = append(subs, list...)
	}
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		for _, p := range sub.partitions {
			g.Go(func() error {
				b.work(gctx, sub, p)
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

func (b *InMemoryBus) work(ctx context.Context, sub *memorySubscription, p *memoryPartition) {
	for {
		p.mu.Lock()
		var head Envelope
		ok := len(p.queue) > 0
		if ok {
			head = p.queue[0]
		}
		p.mu.Unlock()

		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}

		if !b.deliverer.Deliver(ctx, sub.topic, sub.consumer, sub.handler, head) {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.deliverer.Options().RedeliveryBackoff):
			}
			continue
		}

		p.mu.Lock()
		p.queue = p.queue[1:]
		p.mu.Unlock()

		b.mu.Lock()
		b.pending--
		b.mu.Unlock()
	}
}

// WaitIdle blocks until every published envelope has been acknowledged by
// every subscribed consumer, or ctx ends.
func (b *InMemoryBus) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		b.mu.Lock()
		n := b.pending
		b.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ Bus = (*InMemoryBus)(nil)
