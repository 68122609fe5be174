package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
)

type recordingSink struct {
	letters []events.DeadLetter
}

func (s *recordingSink) DeadLetter(_ context.Context, dl events.DeadLetter) error {
	s.letters = append(s.letters, dl)
	return nil
}

func TestDeadLetterRouterRoutesByConsumer(t *testing.T) {
	leads, owners := &recordingSink{}, &recordingSink{}
	r := newDeadLetterRouter()
	r.route(leads, "lead-state-machine")
	r.route(owners, "owner-projection")

	ctx := context.Background()
	_ = r.DeadLetter(ctx, events.DeadLetter{Consumer: "owner-projection"})
	_ = r.DeadLetter(ctx, events.DeadLetter{Consumer: "lead-state-machine"})
	_ = r.DeadLetter(ctx, events.DeadLetter{Consumer: "unlisted"})

	if len(owners.letters) != 1 {
		t.Fatalf("expected 1 letter for owners, got %d", len(owners.letters))
	}
	if len(leads.letters) != 2 {
		t.Fatalf("expected lead sink to take its own and the unlisted letter, got %d", len(leads.letters))
	}
}

func TestDeadLetterRouterWithoutSinkFails(t *testing.T) {
	if err := newDeadLetterRouter().DeadLetter(context.Background(), events.DeadLetter{Consumer: "x"}); err == nil {
		t.Fatal("expected an error so the bus keeps the envelope")
	}
}

func TestWithRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), logger.Nop(), "op", 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second call, got calls=%d err=%v", calls, err)
	}
}

func TestWithRetryReturnsLastError(t *testing.T) {
	err := WithRetry(context.Background(), logger.Nop(), "op", 2, time.Millisecond, func() error {
		return errors.New("still down")
	})
	if err == nil || err.Error() != "op: still down" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewBusSelectsTransport(t *testing.T) {
	cfg := &config.Config{BusTransport: "memory", BusPartitions: 2, BusMaxDeliveries: 3}
	bus, err := NewBus(cfg, nil, nil, logger.Nop())
	if err != nil {
		t.Fatalf("memory bus: %v", err)
	}
	if _, ok := bus.(*events.InMemoryBus); !ok {
		t.Fatalf("expected in-memory bus, got %T", bus)
	}

	cfg.BusTransport = "redis"
	if _, err := NewBus(cfg, nil, nil, logger.Nop()); err == nil {
		t.Fatal("expected redis transport without a client to fail")
	}
}
