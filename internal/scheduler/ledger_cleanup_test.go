package scheduler

import (
	"context"
	"testing"
	"time"
)

type pruneRecorder struct {
	cutoffs []time.Time
}

func (p *pruneRecorder) Count(context.Context, string) (int, error) { return 0, nil }

func (p *pruneRecorder) Prune(_ context.Context, before time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, before)
	return 3, nil
}

func TestLedgerCleanupPrunesOutsideRetention(t *testing.T) {
	store := &pruneRecorder{}
	c := NewLedgerCleanup(store, nil, time.Hour, 48*time.Hour)
	fixed := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	c.cleanup(context.Background())

	if len(store.cutoffs) != 1 {
		t.Fatalf("expected one prune, got %d", len(store.cutoffs))
	}
	if want := fixed.Add(-48 * time.Hour); !store.cutoffs[0].Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, store.cutoffs[0])
	}
}

func TestLedgerCleanupDefaults(t *testing.T) {
	c := NewLedgerCleanup(&pruneRecorder{}, nil, 0, 0)
	if c.interval != defaultLedgerCleanupInterval || c.retention != defaultLedgerRetention {
		t.Fatalf("unexpected defaults %s/%s", c.interval, c.retention)
	}
}

func TestAgentLookupTaskIDIsPerAttempt(t *testing.T) {
	if AgentLookupTaskID(7, 2) == AgentLookupTaskID(7, 3) {
		t.Fatal("distinct attempts must have distinct task ids")
	}
	if AgentLookupTaskID(7, 2) != "agent-lookup:7:2" {
		t.Fatalf("unexpected task id %s", AgentLookupTaskID(7, 2))
	}
}

func TestParseAgentLookupRetryPayload(t *testing.T) {
	task, err := NewAgentLookupRetryTask(AgentLookupRetryPayload{LeadID: 7, Attempt: 2})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TaskAgentLookupRetry {
		t.Fatalf("unexpected type %s", task.Type())
	}
	p, err := ParseAgentLookupRetryPayload(task)
	if err != nil || p.LeadID != 7 || p.Attempt != 2 {
		t.Fatalf("unexpected payload %+v (%v)", p, err)
	}
}
