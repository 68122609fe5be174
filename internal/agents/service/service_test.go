package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/agents/domain"
	"leadflow_backend/internal/agents/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/memstore"
)

type fakeDirectory struct {
	mu      sync.Mutex
	results [][]domain.Agent
	errs    []error
	calls   int
	block   bool
}

func (d *fakeDirectory) EligibleAgents(ctx context.Context, _ string) ([]domain.Agent, error) {
	d.mu.Lock()
	i := d.calls
	d.calls++
	block := d.block
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	var err error
	if i < len(d.errs) {
		err = d.errs[i]
	}
	if i < len(d.results) {
		return d.results[i], err
	}
	return nil, err
}

type scheduled struct {
	leadID  int64
	attempt int
	delay   time.Duration
}

type fakeScheduler struct {
	tasks []scheduled
	err   error
}

func (s *fakeScheduler) ScheduleAgentLookup(_ context.Context, leadID int64, attempt int, delay time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, scheduled{leadID: leadID, attempt: attempt, delay: delay})
	return nil
}

type fixture struct {
	svc       *Service
	store     *memstore.Store
	directory *fakeDirectory
	retries   *fakeScheduler
}

func newFixture(dir *fakeDirectory) *fixture {
	store := repository.NewMemStore()
	retries := &fakeScheduler{}
	return &fixture{
		svc: New(repository.NewMemRepository(store), dir, retries, Settings{
			LookupTimeout: 20 * time.Millisecond,
			MaxAttempts:   3,
			Backoff:       time.Second,
		}, nil),
		store:     store,
		directory: dir,
		retries:   retries,
	}
}

func leadCreated(t *testing.T, leadID int64) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(events.LeadCreated{BaseEvent: events.NewBaseEvent(), LeadID: leadID, PropertyID: "P-1", OwnerID: "O-1", ZipCode: "70000"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func (f *fixture) failures(t *testing.T) []events.AgentAssignmentFailed {
	t.Helper()
	pending, err := outbox.NewMemRepository(f.store).Pending()
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	var out []events.AgentAssignmentFailed
	for _, rec := range pending {
		if rec.Topic != events.TopicAgents {
			continue
		}
		e, err := events.Decode[events.AgentAssignmentFailed](rec.Envelope)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestLeadCreatedAssignsFirstEligibleAgent(t *testing.T) {
	f := newFixture(&fakeDirectory{results: [][]domain.Agent{{{ID: "A1"}, {ID: "A2"}}}})

	a, err := f.svc.HandleLeadCreated(context.Background(), leadCreated(t, 1))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if a.State != domain.StateAssigned || a.AgentID == nil || *a.AgentID != "A1" {
		t.Fatalf("expected assignment to A1, got %+v", a)
	}
	if a.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", a.Attempts)
	}
	if len(f.retries.tasks) != 0 {
		t.Fatalf("expected no retry, got %+v", f.retries.tasks)
	}
}

func TestLeadCreatedRedeliveryIsNoop(t *testing.T) {
	f := newFixture(&fakeDirectory{results: [][]domain.Agent{{{ID: "A1"}}, {{ID: "A2"}}}})
	env := leadCreated(t, 1)

	if _, err := f.svc.HandleLeadCreated(context.Background(), env); err != nil {
		t.Fatalf("first: %v", err)
	}
	a, err := f.svc.HandleLeadCreated(context.Background(), env)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if *a.AgentID != "A1" {
		t.Fatalf("redelivery must not reassign, got %s", *a.AgentID)
	}
	n, _ := ledger.NewMemRepository(f.store).Count(context.Background(), events.ConsumerAgentNotifier)
	if n != 1 {
		t.Fatalf("expected ledger size 1, got %d", n)
	}
}

func TestNoAgentsSchedulesExponentialRetries(t *testing.T) {
	f := newFixture(&fakeDirectory{})
	ctx := context.Background()

	if _, err := f.svc.HandleLeadCreated(ctx, leadCreated(t, 7)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.retries.tasks) != 1 || f.retries.tasks[0] != (scheduled{leadID: 7, attempt: 2, delay: time.Second}) {
		t.Fatalf("expected attempt 2 after 1s, got %+v", f.retries.tasks)
	}

	if err := f.svc.RetryLookup(ctx, 7, 2); err != nil {
		t.Fatalf("retry 2: %v", err)
	}
	if len(f.retries.tasks) != 2 || f.retries.tasks[1] != (scheduled{leadID: 7, attempt: 3, delay: 2 * time.Second}) {
		t.Fatalf("expected attempt 3 after 2s, got %+v", f.retries.tasks)
	}

	if err := f.svc.RetryLookup(ctx, 7, 3); err != nil {
		t.Fatalf("retry 3: %v", err)
	}
	a, _ := f.svc.Get(ctx, 7)
	if a.State != domain.StateFailed || a.Attempts != 3 {
		t.Fatalf("expected FAILED after 3 attempts, got %+v", a)
	}
	if len(f.retries.tasks) != 2 {
		t.Fatalf("expected no retry past the budget, got %+v", f.retries.tasks)
	}

	failed := f.failures(t)
	if len(failed) != 1 {
		t.Fatalf("expected one AgentAssignmentFailed, got %d", len(failed))
	}
	if failed[0].LeadID != 7 || failed[0].ZipCode != "70000" || failed[0].Attempts != 3 {
		t.Fatalf("unexpected diagnostic: %+v", failed[0])
	}
	if failed[0].Reason != "no eligible agents for zip 70000" {
		t.Fatalf("unexpected reason %q", failed[0].Reason)
	}
}

func TestTimeoutTakesRetryPath(t *testing.T) {
	f := newFixture(&fakeDirectory{block: true})

	a, err := f.svc.HandleLeadCreated(context.Background(), leadCreated(t, 3))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if a.State != domain.StatePending || a.LastError == nil || *a.LastError != "lookup timed out" {
		t.Fatalf("expected pending with timeout reason, got %+v", a)
	}
	if len(f.retries.tasks) != 1 {
		t.Fatalf("expected a retry after timeout, got %+v", f.retries.tasks)
	}
}

func TestRetryAssignsWhenAgentAppears(t *testing.T) {
	f := newFixture(&fakeDirectory{
		results: [][]domain.Agent{nil, {{ID: "A9"}}},
		errs:    []error{errors.New("directory unavailable")},
	})
	ctx := context.Background()

	if _, err := f.svc.HandleLeadCreated(ctx, leadCreated(t, 5)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := f.svc.RetryLookup(ctx, 5, 2); err != nil {
		t.Fatalf("retry: %v", err)
	}
	a, _ := f.svc.Get(ctx, 5)
	if a.State != domain.StateAssigned || *a.AgentID != "A9" || a.Attempts != 2 {
		t.Fatalf("expected A9 on attempt 2, got %+v", a)
	}
	if a.LastError != nil {
		t.Fatalf("expected last error cleared, got %q", *a.LastError)
	}
}

func TestStaleRetryIsIgnored(t *testing.T) {
	f := newFixture(&fakeDirectory{results: [][]domain.Agent{nil, nil}})
	ctx := context.Background()

	_, _ = f.svc.HandleLeadCreated(ctx, leadCreated(t, 8))
	_ = f.svc.RetryLookup(ctx, 8, 2)
	calls := f.directory.calls

	if err := f.svc.RetryLookup(ctx, 8, 2); err != nil {
		t.Fatalf("duplicate retry: %v", err)
	}
	if f.directory.calls != calls {
		t.Fatal("duplicate retry must not query the directory again")
	}
	a, _ := f.svc.Get(ctx, 8)
	if a.Attempts != 2 {
		t.Fatalf("expected attempts to stay at 2, got %d", a.Attempts)
	}
}

func TestRetryBeforeAssignmentExistsIsNotFound(t *testing.T) {
	f := newFixture(&fakeDirectory{})
	err := f.svc.RetryLookup(context.Background(), 99, 2)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound so the task is retried, got %v", err)
	}
}

func TestSchedulerFailureKeepsAttemptAndRearmsOnRedelivery(t *testing.T) {
	f := newFixture(&fakeDirectory{})
	ctx := context.Background()
	f.retries.err = errors.New("redis down")
	env := leadCreated(t, 4)

	if _, err := f.svc.HandleLeadCreated(ctx, env); !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("expected scheduling failure to fail the delivery, got %v", err)
	}
	a, err := f.svc.Get(ctx, 4)
	if err != nil || a.State != domain.StatePending || a.Attempts != 1 {
		t.Fatalf("expected committed pending attempt 1, got %+v (%v)", a, err)
	}

	f.retries.err = nil
	if _, err := f.svc.HandleLeadCreated(ctx, env); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(f.retries.tasks) != 1 || f.retries.tasks[0].attempt != 2 {
		t.Fatalf("expected attempt 2 scheduled on redelivery, got %+v", f.retries.tasks)
	}
	if f.directory.calls != 2 {
		t.Fatalf("expected the redelivery to look up once more, got %d calls", f.directory.calls)
	}
}

func TestNothingIsScheduledWhenAttemptDoesNotCommit(t *testing.T) {
	f := newFixture(&fakeDirectory{})
	ctx := context.Background()
	env := leadCreated(t, 6)

	if _, err := f.svc.HandleLeadCreated(ctx, env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	f.retries.tasks = nil

	// Attempt 3 arrives while the stored assignment is at attempt 1.
	if err := f.svc.RetryLookup(ctx, 6, 3); err != nil {
		t.Fatalf("out of order retry: %v", err)
	}
	if len(f.retries.tasks) != 0 {
		t.Fatalf("expected no schedule for a rolled back attempt, got %+v", f.retries.tasks)
	}
	a, _ := f.svc.Get(ctx, 6)
	if a.Attempts != 1 {
		t.Fatalf("expected attempts to stay at 1, got %d", a.Attempts)
	}
}

func TestRetryFailedEnqueueIsRearmedByTaskRetry(t *testing.T) {
	f := newFixture(&fakeDirectory{})
	ctx := context.Background()

	if _, err := f.svc.HandleLeadCreated(ctx, leadCreated(t, 9)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	f.retries.err = errors.New("redis down")
	if err := f.svc.RetryLookup(ctx, 9, 2); err == nil {
		t.Fatal("expected enqueue failure to fail the task")
	}

	f.retries.err = nil
	f.retries.tasks = nil
	calls := f.directory.calls
	if err := f.svc.RetryLookup(ctx, 9, 2); err != nil {
		t.Fatalf("task retry: %v", err)
	}
	if f.directory.calls != calls {
		t.Fatal("a stored attempt must not query the directory again")
	}
	if len(f.retries.tasks) != 1 || f.retries.tasks[0] != (scheduled{leadID: 9, attempt: 3, delay: 2 * time.Second}) {
		t.Fatalf("expected attempt 3 re-armed, got %+v", f.retries.tasks)
	}
}
