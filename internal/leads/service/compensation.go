package service

import (
	"context"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
)

// Compensate handles LeadStatusChanged. Only transitions into REJECTED are
// acted on: the lead is sent back to QUOTE_REQUESTED while its re-quote
// counter is below the limit, and closed otherwise. The counter bump is
// guarded by the compensation router's own ledger partition.
func (s *Service) Compensate(ctx context.Context, env events.Envelope) (domain.Lead, bool, error) {
	e, err := events.Decode[events.LeadStatusChanged](env)
	if err != nil {
		return domain.Lead{}, false, err
	}
	if e.NewStatus != string(domain.StatusRejected) {
		return domain.Lead{}, false, nil
	}
	if err := leadIDMismatch(env, e.LeadID); err != nil {
		return domain.Lead{}, false, err
	}

	lead, err := s.applyEvent(ctx, events.ConsumerCompensationRouter, env, e.LeadID,
		func(lead *domain.Lead, now time.Time) (domain.Change, statusNote, error) {
			change, reason, err := lead.Compensate(s.requoteLimit, now)
			return change, statusNote{reason: &reason}, err
		})
	if err != nil {
		return domain.Lead{}, false, err
	}
	return lead, true, nil
}
