// Package service implements the lead state machine and the compensation
// router. Both own their ledger partition and write lead state, ledger and
// outbox in one unit of work.
package service

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

type Service struct {
	store        repository.Store
	val          *validator.Validator
	requoteLimit int
	log          *logger.Logger
	now          func() time.Time
}

func New(store repository.Store, val *validator.Validator, requoteLimit int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:        store,
		val:          val,
		requoteLimit: requoteLimit,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a lead in CREATED and emits LeadCreatedEvent.
func (s *Service) Create(ctx context.Context, req transport.CreateLeadRequest) (domain.Lead, error) {
	if err := s.val.Struct(req); err != nil {
		return domain.Lead{}, err
	}

	var created domain.Lead
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		lead, err := tx.Create(ctx, domain.NewLead(req.PropertyID, req.OwnerID, req.ZipCode, s.now()))
		if err != nil {
			return err
		}
		_, err = outbox.Emit(ctx, tx, events.TopicLeads, events.LeadCreated{
			BaseEvent:  events.BaseEvent{Timestamp: lead.CreatedAt},
			LeadID:     lead.ID,
			PropertyID: lead.PropertyID,
			OwnerID:    lead.OwnerID,
			ZipCode:    lead.ZipCode,
		})
		created = lead
		return err
	})
	if err != nil {
		return domain.Lead{}, err
	}

	s.log.Info("lead created", "lead_id", created.ID, "zip_code", created.ZipCode)
	return created, nil
}

// Get returns the current lead.
func (s *Service) Get(ctx context.Context, id int64) (domain.Lead, error) {
	return s.store.GetByID(ctx, id)
}

// Delete removes a lead that has no pending quotes.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.InTx(ctx, func(tx repository.Tx) error {
		lead, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := lead.Deletable(); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
}

// statusNote carries the optional LeadStatusChanged fields of a transition.
type statusNote struct {
	agentID *string
	reason  *string
}

// mutation changes lead inside a unit of work and reports the transition it
// applied.
type mutation func(lead *domain.Lead, now time.Time) (domain.Change, statusNote, error)

// applyEvent is the guarded path every consumed event takes: load the lead,
// mutate it, persist it, emit LeadStatusChanged, and record the ledger entry,
// all in one unit of work. A duplicate returns the current lead untouched.
func (s *Service) applyEvent(ctx context.Context, consumer string, env events.Envelope, leadID int64, mutate mutation) (domain.Lead, error) {
	var result domain.Lead
	applied, err := ledger.Guard(ctx, s.store, consumer, env, func(tx repository.Tx) error {
		lead, err := tx.GetForUpdate(ctx, leadID)
		if err != nil {
			return err
		}

		now := s.now()
		change, note, err := mutate(&lead, now)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, lead); err != nil {
			return err
		}
		if _, err := outbox.Emit(ctx, tx, events.TopicLeads, events.LeadStatusChanged{
			BaseEvent: events.BaseEvent{Timestamp: now},
			LeadID:    lead.ID,
			OldStatus: string(change.From),
			NewStatus: string(change.To),
			AgentID:   note.agentID,
			Reason:    note.reason,
		}); err != nil {
			return err
		}
		result = lead
		return nil
	})

	log := s.log.WithContext(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindInvalidTransition) {
			log.Warn("causality violation", "consumer", consumer, "event_id", env.EventID, "event_type", env.Type, "lead_id", leadID, "error", err)
		}
		return domain.Lead{}, err
	}
	if !applied {
		log.DuplicateEvent(consumer, env.Type, env.EventID)
		return s.store.GetByID(ctx, leadID)
	}
	log.EventApplied(consumer, env.Type, env.EventID, env.AggregateID)
	return result, nil
}

func leadIDMismatch(env events.Envelope, leadID int64) error {
	if env.AggregateID != events.LeadKey(leadID) {
		return apperr.Validation(fmt.Sprintf("envelope aggregate %s does not match lead %d", env.AggregateID, leadID))
	}
	return nil
}
