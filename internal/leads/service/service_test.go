package service

import (
	"context"
	"testing"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/apperr"
	platformevents "leadflow_backend/platform/events"
	"leadflow_backend/platform/memstore"
	"leadflow_backend/platform/validator"
)

type fixture struct {
	svc   *Service
	store *memstore.Store
}

func newFixture(t *testing.T, requoteLimit int) *fixture {
	t.Helper()
	store := repository.NewMemStore()
	return &fixture{
		svc:   New(repository.NewMemRepository(store), validator.New(), requoteLimit, nil),
		store: store,
	}
}

func (f *fixture) emitted(t *testing.T, eventType string) []events.Envelope {
	t.Helper()
	pending, err := outbox.NewMemRepository(f.store).Pending()
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	var out []events.Envelope
	for _, rec := range pending {
		if rec.Envelope.Type == eventType {
			out = append(out, rec.Envelope)
		}
	}
	return out
}

func (f *fixture) statusChanges(t *testing.T) []events.LeadStatusChanged {
	t.Helper()
	var out []events.LeadStatusChanged
	for _, env := range f.emitted(t, events.TypeLeadStatusChanged) {
		e, err := events.Decode[events.LeadStatusChanged](env)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func (f *fixture) createLead(t *testing.T) domain.Lead {
	t.Helper()
	lead, err := f.svc.Create(context.Background(), transport.CreateLeadRequest{PropertyID: "P-1", OwnerID: "O-1", ZipCode: "70000"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return lead
}

func mustEnvelope(t *testing.T, e events.Event) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(e)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func (f *fixture) toQuoted(t *testing.T, leadID int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.ApplyQuoteRequested(ctx, mustEnvelope(t, events.QuoteRequested{LeadID: leadID})); err != nil {
		t.Fatalf("quote requested: %v", err)
	}
	if _, err := f.svc.ApplyQuoteCreated(ctx, mustEnvelope(t, events.QuoteCreated{QuoteID: "Q1", LeadID: leadID, AgentID: "A1", Amount: 500})); err != nil {
		t.Fatalf("quote created: %v", err)
	}
}

func TestCreateEmitsLeadCreated(t *testing.T) {
	f := newFixture(t, 1)
	lead := f.createLead(t)

	if lead.ID == 0 || lead.Status != domain.StatusCreated {
		t.Fatalf("unexpected lead %+v", lead)
	}
	created := f.emitted(t, events.TypeLeadCreated)
	if len(created) != 1 || created[0].AggregateID != events.LeadKey(lead.ID) {
		t.Fatalf("expected one LeadCreated keyed by the lead, got %+v", created)
	}
}

func TestCreateRequiresZipCode(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.Create(context.Background(), transport.CreateLeadRequest{PropertyID: "P-1", OwnerID: "O-1"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.emitted(t, events.TypeLeadCreated)) != 0 {
		t.Fatal("no event may be emitted for a rejected create")
	}
}

func TestDuplicateQuoteAcceptedEmitsOnce(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	lead := f.createLead(t)
	f.toQuoted(t, lead.ID)

	accepted := mustEnvelope(t, events.QuoteAccepted{QuoteID: "Q1", LeadID: lead.ID, AgentID: "A1"})
	first, err := f.svc.ApplyQuoteAccepted(ctx, accepted)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	second, err := f.svc.ApplyQuoteAccepted(ctx, accepted)
	if err != nil {
		t.Fatalf("duplicate accept must be a no-op, got %v", err)
	}
	if first.Status != domain.StatusAccepted || second.Status != domain.StatusAccepted {
		t.Fatalf("expected ACCEPTED both times, got %s and %s", first.Status, second.Status)
	}

	var toAccepted int
	for _, e := range f.statusChanges(t) {
		if e.NewStatus == string(domain.StatusAccepted) {
			toAccepted++
			if e.OldStatus != string(domain.StatusQuoted) || e.AgentID == nil || *e.AgentID != "A1" || e.Reason != nil {
				t.Fatalf("unexpected status change %+v", e)
			}
		}
	}
	if toAccepted != 1 {
		t.Fatalf("expected exactly one ACCEPTED status change, got %d", toAccepted)
	}
}

func TestNovelAcceptOutsideQuotedIsInvalidTransition(t *testing.T) {
	f := newFixture(t, 1)
	lead := f.createLead(t)

	_, err := f.svc.ApplyQuoteAccepted(context.Background(), mustEnvelope(t, events.QuoteAccepted{QuoteID: "Q1", LeadID: lead.ID, AgentID: "A1"}))
	if !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if !platformevents.IsPermanent(err) {
		t.Fatal("invalid transitions must not be redelivered")
	}
	got, _ := f.svc.Get(context.Background(), lead.ID)
	if got.Status != domain.StatusCreated {
		t.Fatalf("status must be unchanged, got %s", got.Status)
	}
}

func TestQuoteCreatedAllowedFromCreated(t *testing.T) {
	f := newFixture(t, 1)
	lead := f.createLead(t)

	got, err := f.svc.ApplyQuoteCreated(context.Background(), mustEnvelope(t, events.QuoteCreated{QuoteID: "Q1", LeadID: lead.ID, AgentID: "A1", Amount: 10}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Status != domain.StatusQuoted || got.PendingQuotes != 1 {
		t.Fatalf("expected QUOTED with one pending quote, got %+v", got)
	}
}

func TestEventForMissingLeadIsRetryable(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.ApplyQuoteCreated(context.Background(), mustEnvelope(t, events.QuoteCreated{QuoteID: "Q1", LeadID: 999, AgentID: "A1"}))
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if platformevents.IsPermanent(err) {
		t.Fatal("an event racing ahead of its lead must be redelivered")
	}
	if n, _ := ledger.NewMemRepository(f.store).Count(context.Background(), events.ConsumerLeadStateMachine); n != 0 {
		t.Fatalf("failed apply must not be recorded, ledger has %d", n)
	}
}

func TestRejectionCompensationRequotesThenCloses(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	lead := f.createLead(t)
	f.toQuoted(t, lead.ID)

	if _, err := f.svc.ApplyQuoteRejected(ctx, mustEnvelope(t, events.QuoteRejected{QuoteID: "Q1", LeadID: lead.ID, AgentID: "A1"})); err != nil {
		t.Fatalf("reject: %v", err)
	}
	rejected := f.emitted(t, events.TypeLeadStatusChanged)
	first := rejected[len(rejected)-1]

	got, acted, err := f.svc.Compensate(ctx, first)
	if err != nil || !acted {
		t.Fatalf("compensate: acted=%v err=%v", acted, err)
	}
	if got.Status != domain.StatusQuoteRequested || got.RequoteCount != 1 {
		t.Fatalf("expected QUOTE_REQUESTED with counter 1, got %s/%d", got.Status, got.RequoteCount)
	}

	// Redelivery of the same rejection must not bump the counter again.
	again, _, err := f.svc.Compensate(ctx, first)
	if err != nil || again.RequoteCount != 1 {
		t.Fatalf("expected duplicate compensation to be a no-op, got %d (%v)", again.RequoteCount, err)
	}

	if _, err := f.svc.ApplyQuoteCreated(ctx, mustEnvelope(t, events.QuoteCreated{QuoteID: "Q2", LeadID: lead.ID, AgentID: "A1", Amount: 450})); err != nil {
		t.Fatalf("second quote: %v", err)
	}
	if _, err := f.svc.ApplyQuoteRejected(ctx, mustEnvelope(t, events.QuoteRejected{QuoteID: "Q2", LeadID: lead.ID, AgentID: "A1"})); err != nil {
		t.Fatalf("second reject: %v", err)
	}
	changes := f.emitted(t, events.TypeLeadStatusChanged)
	got, _, err = f.svc.Compensate(ctx, changes[len(changes)-1])
	if err != nil {
		t.Fatalf("second compensate: %v", err)
	}
	if got.Status != domain.StatusClosed {
		t.Fatalf("expected CLOSED at the limit, got %s", got.Status)
	}

	last := f.statusChanges(t)
	final := last[len(last)-1]
	if final.Reason == nil || *final.Reason != domain.ReasonRequoteLimitReached {
		t.Fatalf("expected closing reason %s, got %+v", domain.ReasonRequoteLimitReached, final.Reason)
	}
}

func TestCompensateIgnoresNonRejectedChanges(t *testing.T) {
	f := newFixture(t, 1)
	lead := f.createLead(t)
	env := mustEnvelope(t, events.LeadStatusChanged{LeadID: lead.ID, OldStatus: "QUOTED", NewStatus: "ACCEPTED"})

	_, acted, err := f.svc.Compensate(context.Background(), env)
	if err != nil || acted {
		t.Fatalf("expected no action, got acted=%v err=%v", acted, err)
	}
	if n, _ := ledger.NewMemRepository(f.store).Count(context.Background(), events.ConsumerCompensationRouter); n != 0 {
		t.Fatalf("ignored events are not recorded, ledger has %d", n)
	}
}

func TestDeleteBlockedWhilePendingQuotes(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	lead := f.createLead(t)
	f.toQuoted(t, lead.ID)

	if err := f.svc.Delete(ctx, lead.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.svc.ApplyQuoteAccepted(ctx, mustEnvelope(t, events.QuoteAccepted{QuoteID: "Q1", LeadID: lead.ID, AgentID: "A1"})); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := f.svc.Delete(ctx, lead.ID); err != nil {
		t.Fatalf("delete after decision: %v", err)
	}
	if _, err := f.svc.Get(ctx, lead.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected deleted lead to be gone, got %v", err)
	}
}

func TestLedgerCountsDistinctEvents(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	lead := f.createLead(t)

	requested := mustEnvelope(t, events.QuoteRequested{LeadID: lead.ID})
	for i := 0; i < 3; i++ {
		if _, err := f.svc.ApplyQuoteRequested(ctx, requested); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}
	n, _ := ledger.NewMemRepository(f.store).Count(ctx, events.ConsumerLeadStateMachine)
	if n != 1 {
		t.Fatalf("expected ledger size 1, got %d", n)
	}
}

func TestStateMachineHandlerRoutesByType(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	lead := f.createLead(t)
	h := f.svc.StateMachineHandler()

	if err := h.Handle(ctx, mustEnvelope(t, events.QuoteRequested{LeadID: lead.ID})); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, _ := f.svc.Get(ctx, lead.ID)
	if got.Status != domain.StatusQuoteRequested {
		t.Fatalf("expected QUOTE_REQUESTED, got %s", got.Status)
	}
}

func TestMismatchedAggregateIsRejected(t *testing.T) {
	f := newFixture(t, 1)
	lead := f.createLead(t)
	env := mustEnvelope(t, events.QuoteRequested{LeadID: lead.ID})
	env.AggregateID = "other"

	if _, err := f.svc.ApplyQuoteRequested(context.Background(), env); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
