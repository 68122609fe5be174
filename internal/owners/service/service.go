// Package service implements the owner projection updater. It is purely
// event-driven and makes no synchronous calls.
package service

import (
	"context"
	"fmt"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/owners/domain"
	"leadflow_backend/internal/owners/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	platformevents "leadflow_backend/platform/events"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type Service struct {
	store repository.Store
	log   *logger.Logger
}

func New(store repository.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, log: log}
}

// HandleLeadCreated records the owner of a new lead.
func (s *Service) HandleLeadCreated(ctx context.Context, env events.Envelope) error {
	e, err := events.Decode[events.LeadCreated](env)
	if err != nil {
		return err
	}
	if err := checkAggregate(env, e.LeadID); err != nil {
		return err
	}
	return s.apply(ctx, env, func(tx repository.Tx) error {
		return tx.SaveLeadOwner(ctx, domain.LeadOwner{LeadID: e.LeadID, OwnerID: e.OwnerID, CreatedAt: e.Timestamp})
	})
}

// HandleStatusChanged appends one history entry. A change for a lead whose
// owner is not projected yet fails with NotFound so the bus redelivers it.
func (s *Service) HandleStatusChanged(ctx context.Context, env events.Envelope) error {
	e, err := events.Decode[events.LeadStatusChanged](env)
	if err != nil {
		return err
	}
	if err := checkAggregate(env, e.LeadID); err != nil {
		return err
	}
	return s.apply(ctx, env, func(tx repository.Tx) error {
		ref, err := tx.GetLeadOwner(ctx, e.LeadID)
		if err != nil {
			return err
		}
		return tx.Append(ctx, domain.Entry{
			OwnerID:   ref.OwnerID,
			LeadID:    e.LeadID,
			Status:    e.NewStatus,
			Reason:    e.Reason,
			UpdatedAt: e.Timestamp,
			EventID:   env.EventID,
		})
	})
}

func (s *Service) apply(ctx context.Context, env events.Envelope, fn func(tx repository.Tx) error) error {
	applied, err := ledger.Guard(ctx, s.store, events.ConsumerOwnerProjection, env, fn)
	if err != nil {
		return err
	}
	log := s.log.WithContext(ctx)
	if !applied {
		log.DuplicateEvent(events.ConsumerOwnerProjection, env.Type, env.EventID)
		return nil
	}
	log.EventApplied(events.ConsumerOwnerProjection, env.Type, env.EventID, env.AggregateID)
	return nil
}

// History returns the status history of a lead for its owner, newest first.
func (s *Service) History(ctx context.Context, ownerID string, leadID int64, limit int) ([]domain.Entry, error) {
	if ownerID == "" {
		return nil, apperr.Validation("owner id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.History(ctx, ownerID, leadID, limit)
}

// Latest returns the most recent entry of a lead for its owner.
func (s *Service) Latest(ctx context.Context, ownerID string, leadID int64) (domain.Entry, error) {
	entries, err := s.History(ctx, ownerID, leadID, 1)
	if err != nil {
		return domain.Entry{}, err
	}
	if len(entries) == 0 {
		return domain.Entry{}, apperr.NotFound(fmt.Sprintf("no history for lead %d of owner %s", leadID, ownerID))
	}
	return entries[0], nil
}

// ListByOwner returns the latest entry of every lead of an owner.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]domain.Entry, error) {
	if ownerID == "" {
		return nil, apperr.Validation("owner id is required")
	}
	return s.store.ListByOwner(ctx, ownerID)
}

// Handler routes lead events into the projection.
func (s *Service) Handler() events.Handler {
	r := platformevents.NewRouter()
	r.HandleFunc(events.TypeLeadCreated, s.HandleLeadCreated)
	r.HandleFunc(events.TypeLeadStatusChanged, s.HandleStatusChanged)
	return r
}

// Subscribe registers the projection consumer on bus.
func (s *Service) Subscribe(bus events.Bus) error {
	return bus.Subscribe(events.TopicLeads, events.ConsumerOwnerProjection, s.Handler())
}

func checkAggregate(env events.Envelope, leadID int64) error {
	if env.AggregateID != events.LeadKey(leadID) {
		return apperr.Validation(fmt.Sprintf("envelope aggregate %s does not match lead %d", env.AggregateID, leadID))
	}
	return nil
}
