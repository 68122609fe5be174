package redisbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"leadflow_backend/platform/events"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testTopic = "leadflow.quotes"

func newTestBus(t *testing.T, opts events.Options) (*Bus, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if opts.RedeliveryBackoff == 0 {
		opts.RedeliveryBackoff = -1
	}
	return New(client, opts, -1), client
}

func testEnvelope(id, aggregate string) events.Envelope {
	return events.Envelope{EventID: id, AggregateID: aggregate, Type: "QuoteCreatedEvent", Version: events.SchemaVersion, Payload: []byte(`{"quoteId":"q-1"}`)}
}

func TestPublishAppendsToPartitionStreamAndBumpsOffset(t *testing.T) {
	bus, client := newTestBus(t, events.Options{Partitions: 4})
	ctx := context.Background()

	env := testEnvelope("e1", "101")
	if err := bus.Publish(ctx, testTopic, env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	stream := StreamKey(testTopic, events.Partition("101", 4))
	n, err := client.XLen(ctx, stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 entry in %s, got %d", stream, n)
	}

	offset, err := bus.Offset(ctx, testTopic)
	if err != nil || offset != 1 {
		t.Fatalf("expected offset 1, got %d (%v)", offset, err)
	}
}

func TestPollDeliversInOrderAndAcknowledges(t *testing.T) {
	bus, client := newTestBus(t, events.Options{Partitions: 1})
	ctx := context.Background()

	var seen []string
	sub := &subscription{topic: testTopic, consumer: "lead-state-machine", handler: events.HandlerFunc(func(_ context.Context, env events.Envelope) error {
		seen = append(seen, env.EventID)
		return nil
	})}
	if err := bus.ensureGroup(ctx, StreamKey(testTopic, 0), sub.consumer); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	for _, id := range []string{"e1", "e2", "e3"} {
		if err := bus.Publish(ctx, testTopic, testEnvelope(id, "7")); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	cursor, err := bus.poll(ctx, sub, 0, pendingCursor)
	if err != nil || cursor != newCursor {
		t.Fatalf("expected empty pending list to switch to new entries, got %q (%v)", cursor, err)
	}
	if _, err := bus.poll(ctx, sub, 0, newCursor); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if len(seen) != 3 || seen[0] != "e1" || seen[1] != "e2" || seen[2] != "e3" {
		t.Fatalf("expected [e1 e2 e3], got %v", seen)
	}
	pending, err := client.XPending(ctx, StreamKey(testTopic, 0), sub.consumer).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected every entry acknowledged, %d pending", pending.Count)
	}
}

func TestPollReplaysUnacknowledgedEntriesFirst(t *testing.T) {
	bus, client := newTestBus(t, events.Options{Partitions: 1})
	ctx := context.Background()
	stream := StreamKey(testTopic, 0)
	consumer := "owner-projection"

	if err := bus.ensureGroup(ctx, stream, consumer); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	_ = bus.Publish(ctx, testTopic, testEnvelope("e1", "7"))

	// Simulate a worker that read the entry and crashed before acknowledging.
	_, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: consumer, Consumer: bus.workerName(consumer, 0), Streams: []string{stream, newCursor}, Count: 10, Block: -1,
	}).Result()
	if err != nil {
		t.Fatalf("xreadgroup: %v", err)
	}
	_ = bus.Publish(ctx, testTopic, testEnvelope("e2", "7"))

	var seen []string
	sub := &subscription{topic: testTopic, consumer: consumer, handler: events.HandlerFunc(func(_ context.Context, env events.Envelope) error {
		seen = append(seen, env.EventID)
		return nil
	})}

	cursor := pendingCursor
	for i := 0; i < 4; i++ {
		cursor, err = bus.poll(ctx, sub, 0, cursor)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	if len(seen) != 2 || seen[0] != "e1" || seen[1] != "e2" {
		t.Fatalf("expected redelivered e1 before e2, got %v", seen)
	}
}

func TestPollDeadLettersAfterBudgetAndAcknowledges(t *testing.T) {
	var letters []events.DeadLetter
	sink := events.DeadLetterFunc(func(_ context.Context, dl events.DeadLetter) error {
		letters = append(letters, dl)
		return nil
	})
	bus, client := newTestBus(t, events.Options{Partitions: 1, MaxDeliveries: 2, DeadLetters: sink})
	ctx := context.Background()
	stream := StreamKey(testTopic, 0)

	calls := 0
	sub := &subscription{topic: testTopic, consumer: "lead-state-machine", handler: events.HandlerFunc(func(context.Context, events.Envelope) error {
		calls++
		return errors.New("lead store unavailable")
	})}
	_ = bus.ensureGroup(ctx, stream, sub.consumer)
	_ = bus.Publish(ctx, testTopic, testEnvelope("e1", "7"))

	if _, err := bus.poll(ctx, sub, 0, newCursor); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 deliveries, got %d", calls)
	}
	if len(letters) != 1 || letters[0].Envelope.EventID != "e1" {
		t.Fatalf("expected e1 dead-lettered, got %+v", letters)
	}
	pending, _ := client.XPending(ctx, stream, sub.consumer).Result()
	if pending.Count != 0 {
		t.Fatalf("expected dead-lettered entry to be acknowledged, %d pending", pending.Count)
	}
}

func TestPollKeepsEntryPendingWhenDeadLetterSinkFails(t *testing.T) {
	sink := events.DeadLetterFunc(func(context.Context, events.DeadLetter) error {
		return errors.New("dead-letter store down")
	})
	bus, client := newTestBus(t, events.Options{Partitions: 1, MaxDeliveries: 1, DeadLetters: sink})
	ctx := context.Background()
	stream := StreamKey(testTopic, 0)

	sub := &subscription{topic: testTopic, consumer: "lead-state-machine", handler: events.HandlerFunc(func(context.Context, events.Envelope) error {
		return errors.New("boom")
	})}
	_ = bus.ensureGroup(ctx, stream, sub.consumer)
	_ = bus.Publish(ctx, testTopic, testEnvelope("e1", "7"))

	cursor, err := bus.poll(ctx, sub, 0, newCursor)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if cursor != pendingCursor {
		t.Fatalf("expected worker to fall back to the pending list, got %q", cursor)
	}
	pending, _ := client.XPending(ctx, stream, sub.consumer).Result()
	if pending.Count != 1 {
		t.Fatalf("expected entry to remain pending, got %d", pending.Count)
	}
}

func TestPollDeadLettersUndecodableEntryWithRawContent(t *testing.T) {
	var letters []events.DeadLetter
	sink := events.DeadLetterFunc(func(_ context.Context, dl events.DeadLetter) error {
		letters = append(letters, dl)
		return nil
	})
	bus, client := newTestBus(t, events.Options{Partitions: 1, DeadLetters: sink})
	ctx := context.Background()
	stream := StreamKey(testTopic, 0)
	consumer := "lead-state-machine"

	_ = bus.ensureGroup(ctx, stream, consumer)
	if err := client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]any{envelopeField: "{not json"}}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}

	calls := 0
	sub := &subscription{topic: testTopic, consumer: consumer, handler: events.HandlerFunc(func(context.Context, events.Envelope) error {
		calls++
		return nil
	})}
	if _, err := bus.poll(ctx, sub, 0, newCursor); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if calls != 0 {
		t.Fatalf("handler must not see an undecodable entry, got %d calls", calls)
	}
	if len(letters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(letters))
	}
	dl := letters[0]
	if dl.Envelope.Type != events.TypeUndecodable || dl.Consumer != consumer || dl.Topic != testTopic {
		t.Fatalf("unexpected dead letter %+v", dl)
	}
	if string(dl.Envelope.Payload) != `"{not json"` {
		t.Fatalf("expected raw entry kept, got %s", dl.Envelope.Payload)
	}
	if !strings.HasPrefix(dl.Envelope.EventID, stream+"/") || dl.Reason == "" {
		t.Fatalf("expected entry id and reason, got %q / %q", dl.Envelope.EventID, dl.Reason)
	}
	pending, _ := client.XPending(ctx, stream, consumer).Result()
	if pending.Count != 0 {
		t.Fatalf("expected dead-lettered entry acknowledged, %d pending", pending.Count)
	}
}

func TestPartitionLeaseHasOneHolder(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()
	newBus := func() *Bus {
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return New(client, events.Options{Partitions: 1}, -1)
	}
	a, b := newBus(), newBus()
	lease := LeaseKey(testTopic, 0, "owner-projection")

	if held, err := a.acquire(ctx, lease); err != nil || !held {
		t.Fatalf("expected first instance to take the lease, got %v (%v)", held, err)
	}
	if held, _ := b.acquire(ctx, lease); held {
		t.Fatal("second instance must not take a held lease")
	}
	if held, _ := a.acquire(ctx, lease); !held {
		t.Fatal("holder must be able to re-acquire its own lease")
	}

	if err := releaseScript.Run(ctx, b.client, []string{lease}, b.instance).Err(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if held, _ := b.acquire(ctx, lease); held {
		t.Fatal("a non-holder release must leave the lease in place")
	}

	srv.FastForward(defaultLeaseTTL + time.Second)
	if held, _ := b.acquire(ctx, lease); !held {
		t.Fatal("expected an expired lease to be taken over")
	}
}

func TestTwoInstancesServeAPartitionOneAtATime(t *testing.T) {
	srv := miniredis.RunT(t)
	const consumer = "lead-state-machine"
	const total = 40

	var (
		mu        sync.Mutex
		active    int
		maxActive int
		seen      []string
	)
	handler := events.HandlerFunc(func(_ context.Context, env events.Envelope) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		seen = append(seen, env.EventID)
		mu.Unlock()
		return nil
	})

	var buses []*Bus
	for i := 0; i < 2; i++ {
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		bus := New(client, events.Options{Partitions: 1, RedeliveryBackoff: -1}, 20*time.Millisecond)
		bus.leaseRetry = 5 * time.Millisecond
		if err := bus.Subscribe(testTopic, consumer, handler); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		buses = append(buses, bus)
	}

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < total; i++ {
		if err := buses[i%2].Publish(ctx, testTopic, testEnvelope(fmt.Sprintf("e%02d", i), "101")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	done := make(chan error, len(buses))
	for _, bus := range buses {
		go func() { done <- bus.Run(ctx) }()
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= total {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("delivered %d of %d envelopes", n, total)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	for range buses {
		<-done
	}

	if maxActive != 1 {
		t.Fatalf("expected one handler at a time for one lead, saw %d", maxActive)
	}
	if len(seen) != total {
		t.Fatalf("expected %d deliveries, got %d", total, len(seen))
	}
	for i, id := range seen {
		if id != fmt.Sprintf("e%02d", i) {
			t.Fatalf("delivery %d out of order: %v", i, seen)
		}
	}
}

func TestNewOwnerReplaysEntriesLeftByPreviousOwner(t *testing.T) {
	bus, client := newTestBus(t, events.Options{Partitions: 1})
	bus.claimMinIdle = 0
	bus.leaseRetry = 5 * time.Millisecond
	bus.block = 20 * time.Millisecond
	ctx := context.Background()
	stream := StreamKey(testTopic, 0)
	consumer := "owner-projection"

	if err := bus.ensureGroup(ctx, stream, consumer); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	_ = bus.Publish(ctx, testTopic, testEnvelope("e1", "7"))

	// A previous instance read e1 and died without acknowledging it.
	if _, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: consumer, Consumer: consumer + "-p0-gone", Streams: []string{stream, newCursor}, Count: 10, Block: -1,
	}).Result(); err != nil {
		t.Fatalf("xreadgroup: %v", err)
	}
	_ = bus.Publish(ctx, testTopic, testEnvelope("e2", "7"))

	var (
		mu   sync.Mutex
		seen []string
	)
	if err := bus.Subscribe(testTopic, consumer, events.HandlerFunc(func(_ context.Context, env events.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, env.EventID)
		return nil
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- bus.Run(runCtx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if len(seen) != 2 || seen[0] != "e1" || seen[1] != "e2" {
		t.Fatalf("expected claimed e1 before e2, got %v", seen)
	}
	pending, _ := client.XPending(ctx, stream, consumer).Result()
	if pending.Count != 0 {
		t.Fatalf("expected every entry acknowledged, %d pending", pending.Count)
	}
}
