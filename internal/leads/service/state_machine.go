package service

import (
	"context"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
)

// ApplyQuoteRequested moves a CREATED lead to QUOTE_REQUESTED.
func (s *Service) ApplyQuoteRequested(ctx context.Context, env events.Envelope) (domain.Lead, error) {
	e, err := events.Decode[events.QuoteRequested](env)
	if err != nil {
		return domain.Lead{}, err
	}
	if err := leadIDMismatch(env, e.LeadID); err != nil {
		return domain.Lead{}, err
	}
	return s.applyEvent(ctx, events.ConsumerLeadStateMachine, env, e.LeadID,
		func(lead *domain.Lead, now time.Time) (domain.Change, statusNote, error) {
			change, err := lead.Transition(domain.StatusQuoteRequested, now)
			return change, statusNote{}, err
		})
}

// ApplyQuoteCreated moves a CREATED or QUOTE_REQUESTED lead to QUOTED and
// counts the new pending quote.
func (s *Service) ApplyQuoteCreated(ctx context.Context, env events.Envelope) (domain.Lead, error) {
	e, err := events.Decode[events.QuoteCreated](env)
	if err != nil {
		return domain.Lead{}, err
	}
	if err := leadIDMismatch(env, e.LeadID); err != nil {
		return domain.Lead{}, err
	}
	return s.applyEvent(ctx, events.ConsumerLeadStateMachine, env, e.LeadID,
		func(lead *domain.Lead, now time.Time) (domain.Change, statusNote, error) {
			change, err := lead.QuoteIssued(now)
			return change, statusNote{agentID: &e.AgentID}, err
		})
}

// ApplyQuoteAccepted moves a QUOTED lead to ACCEPTED.
func (s *Service) ApplyQuoteAccepted(ctx context.Context, env events.Envelope) (domain.Lead, error) {
	e, err := events.Decode[events.QuoteAccepted](env)
	if err != nil {
		return domain.Lead{}, err
	}
	if err := leadIDMismatch(env, e.LeadID); err != nil {
		return domain.Lead{}, err
	}
	return s.applyEvent(ctx, events.ConsumerLeadStateMachine, env, e.LeadID,
		func(lead *domain.Lead, now time.Time) (domain.Change, statusNote, error) {
			change, err := lead.QuoteDecided(true, now)
			return change, statusNote{agentID: &e.AgentID}, err
		})
}

// ApplyQuoteRejected moves a QUOTED lead to REJECTED. The emitted
// LeadStatusChanged is what hands the lead to the compensation router.
func (s *Service) ApplyQuoteRejected(ctx context.Context, env events.Envelope) (domain.Lead, error) {
	e, err := events.Decode[events.QuoteRejected](env)
	if err != nil {
		return domain.Lead{}, err
	}
	if err := leadIDMismatch(env, e.LeadID); err != nil {
		return domain.Lead{}, err
	}
	return s.applyEvent(ctx, events.ConsumerLeadStateMachine, env, e.LeadID,
		func(lead *domain.Lead, now time.Time) (domain.Change, statusNote, error) {
			change, err := lead.QuoteDecided(false, now)
			return change, statusNote{agentID: &e.AgentID}, err
		})
}
