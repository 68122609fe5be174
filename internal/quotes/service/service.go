// Package service implements the quote lifecycle: quote creation against a
// quotable lead, agent decisions, and enabling quoting for new leads.
package service

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/internal/quotes/domain"
	"leadflow_backend/internal/quotes/ports"
	"leadflow_backend/internal/quotes/repository"
	"leadflow_backend/internal/quotes/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
)

type Service struct {
	store repository.Store
	leads ports.LeadLookup
	val   *validator.Validator
	log   *logger.Logger
	now   func() time.Time
}

func New(store repository.Store, leads ports.LeadLookup, val *validator.Validator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store: store,
		leads: leads,
		val:   val,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateQuote issues a pending quote against a lead that is open for
// quoting and emits QuoteCreatedEvent. The lead is checked synchronously so
// a quote never races ahead of its lead.
func (s *Service) CreateQuote(ctx context.Context, req transport.CreateQuoteRequest) (domain.Quote, error) {
	if err := s.val.Struct(req); err != nil {
		return domain.Quote{}, err
	}
	if err := s.checkQuotable(ctx, req.LeadID); err != nil {
		return domain.Quote{}, err
	}

	q := domain.Quote{
		ID:        uuid.NewString(),
		LeadID:    req.LeadID,
		AgentID:   req.AgentID,
		Amount:    req.Amount,
		Decision:  domain.DecisionPending,
		CreatedAt: s.now(),
	}
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Create(ctx, q); err != nil {
			return err
		}
		_, err := outbox.Emit(ctx, tx, events.TopicQuotes, events.QuoteCreated{
			BaseEvent: events.BaseEvent{Timestamp: q.CreatedAt},
			QuoteID:   q.ID,
			LeadID:    q.LeadID,
			AgentID:   q.AgentID,
			Amount:    q.Amount,
		})
		return err
	})
	if err != nil {
		return domain.Quote{}, err
	}

	s.log.WithContext(ctx).Info("quote created", "quote_id", q.ID, "lead_id", q.LeadID, "agent_id", q.AgentID)
	return q, nil
}

func (s *Service) checkQuotable(ctx context.Context, leadID int64) error {
	lead, err := s.leads.GetLead(ctx, leadID)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		return apperr.UnknownLead(fmt.Sprintf("lead %d does not exist", leadID))
	case apperr.Is(err, apperr.KindTransient):
		return err
	case err != nil:
		return apperr.Transient("lead lookup failed", err)
	}

	switch lead.Status {
	case ports.LeadStatusQuoteRequested:
		return s.checkLeadView(ctx, lead)
	case ports.LeadStatusCreated:
		return apperr.UnknownLead(fmt.Sprintf("lead %d has not reached %s", leadID, ports.LeadStatusQuoteRequested))
	default:
		return apperr.Conflict(fmt.Sprintf("lead %d is %s and cannot take a new quote", leadID, lead.Status)).
			WithDetails(map[string]string{"status": lead.Status})
	}
}

// checkLeadView compares the lead snapshot with the quotes this service has
// already decided for it. The lead applies those decisions asynchronously,
// so a snapshot that has not caught up must not admit a new quote.
func (s *Service) checkLeadView(ctx context.Context, lead ports.LeadSnapshot) error {
	quotes, err := s.store.ListByLead(ctx, lead.LeadID)
	if err != nil {
		return err
	}
	rejected := 0
	for _, q := range quotes {
		switch q.Decision {
		case domain.DecisionPending:
			return apperr.Conflict(fmt.Sprintf("lead %d already has a pending quote", lead.LeadID))
		case domain.DecisionAccepted:
			return apperr.Conflict(fmt.Sprintf("lead %d already has an accepted quote", lead.LeadID))
		case domain.DecisionRejected:
			rejected++
		}
	}
	if rejected > lead.RequoteCount {
		return apperr.Transient(fmt.Sprintf("lead %d has not applied %d rejected quote(s) yet", lead.LeadID, rejected-lead.RequoteCount), nil)
	}
	return nil
}

// Decide records the agent's decision on a pending quote and emits
// QuoteAcceptedEvent or QuoteRejectedEvent.
func (s *Service) Decide(ctx context.Context, quoteID string, req transport.DecideQuoteRequest) (domain.Quote, error) {
	if err := s.val.Struct(req); err != nil {
		return domain.Quote{}, err
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		return domain.Quote{}, err
	}

	var decided domain.Quote
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		q, err := tx.GetForUpdate(ctx, quoteID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := q.Decide(decision, now); err != nil {
			return err
		}
		if err := tx.Update(ctx, q); err != nil {
			return err
		}

		var event events.Event = events.QuoteAccepted{
			BaseEvent: events.BaseEvent{Timestamp: now}, QuoteID: q.ID, LeadID: q.LeadID, AgentID: q.AgentID,
		}
		if decision == domain.DecisionRejected {
			event = events.QuoteRejected{
				BaseEvent: events.BaseEvent{Timestamp: now}, QuoteID: q.ID, LeadID: q.LeadID, AgentID: q.AgentID,
			}
		}
		if _, err := outbox.Emit(ctx, tx, events.TopicQuotes, event); err != nil {
			return err
		}
		decided = q
		return nil
	})
	if err != nil {
		return domain.Quote{}, err
	}

	s.log.WithContext(ctx).Info("quote decided", "quote_id", decided.ID, "lead_id", decided.LeadID, "decision", decided.Decision)
	return decided, nil
}

// Get returns one quote.
func (s *Service) Get(ctx context.Context, quoteID string) (domain.Quote, error) {
	return s.store.GetByID(ctx, quoteID)
}

// ListByLead returns the quotes of a lead, newest first.
func (s *Service) ListByLead(ctx context.Context, leadID int64) ([]domain.Quote, error) {
	return s.store.ListByLead(ctx, leadID)
}

// HandleLeadCreated opens a new lead for quoting and emits
// QuoteRequestedEvent, which moves the lead to QUOTE_REQUESTED.
func (s *Service) HandleLeadCreated(ctx context.Context, env events.Envelope) error {
	e, err := events.Decode[events.LeadCreated](env)
	if err != nil {
		return err
	}

	applied, err := ledger.Guard(ctx, s.store, events.ConsumerQuoteLifecycle, env, func(tx repository.Tx) error {
		now := s.now()
		req := domain.QuoteRequest{ID: uuid.NewString(), LeadID: e.LeadID, ZipCode: e.ZipCode, RequestedAt: now}
		if err := tx.CreateQuoteRequest(ctx, req); err != nil {
			return err
		}
		_, err := outbox.Emit(ctx, tx, events.TopicQuotes, events.QuoteRequested{
			BaseEvent:      events.BaseEvent{Timestamp: now},
			QuoteRequestID: req.ID,
			LeadID:         e.LeadID,
		})
		return err
	})

	log := s.log.WithContext(ctx)
	if err != nil {
		return err
	}
	if !applied {
		log.DuplicateEvent(events.ConsumerQuoteLifecycle, env.Type, env.EventID)
		return nil
	}
	log.EventApplied(events.ConsumerQuoteLifecycle, env.Type, env.EventID, env.AggregateID)
	return nil
}
