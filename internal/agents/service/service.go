// Package service implements the agent assignment notifier. A LeadCreated
// event triggers a bounded synchronous lookup of eligible agents; misses and
// timeouts are retried through delayed tasks until the attempt budget runs
// out, at which point AgentAssignmentFailed is emitted.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/agents/domain"
	"leadflow_backend/internal/agents/ports"
	"leadflow_backend/internal/agents/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

// Settings bounds the lookup and its retries.
type Settings struct {
	LookupTimeout time.Duration
	MaxAttempts   int
	Backoff       time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.LookupTimeout <= 0 {
		s.LookupTimeout = 2 * time.Second
	}
	if s.MaxAttempts < 1 {
		s.MaxAttempts = 3
	}
	if s.Backoff <= 0 {
		s.Backoff = time.Second
	}
	return s
}

type Service struct {
	store     repository.Store
	directory ports.AgentDirectory
	retries   ports.RetryScheduler
	settings  Settings
	log       *logger.Logger
	now       func() time.Time
}

func New(store repository.Store, directory ports.AgentDirectory, retries ports.RetryScheduler, settings Settings, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:     store,
		directory: directory,
		retries:   retries,
		settings:  settings.withDefaults(),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the assignment projection of a lead.
func (s *Service) Get(ctx context.Context, leadID int64) (domain.Assignment, error) {
	return s.store.GetByLead(ctx, leadID)
}

// lookupResult is the outcome of one bounded directory call.
type lookupResult struct {
	agents []domain.Agent
	err    error
}

func (r lookupResult) reason(zipCode string) string {
	switch {
	case r.err == nil:
		return fmt.Sprintf("no eligible agents for zip %s", zipCode)
	case errors.Is(r.err, context.DeadlineExceeded):
		return "lookup timed out"
	default:
		return r.err.Error()
	}
}

// lookup queries the directory under the configured timeout. It fails only
// when the caller's own context ends; directory errors are part of the
// result so they take the retry path.
func (s *Service) lookup(ctx context.Context, zipCode string) (lookupResult, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.settings.LookupTimeout)
	defer cancel()

	agents, err := s.directory.EligibleAgents(lookupCtx, zipCode)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return lookupResult{}, ctxErr
	}
	return lookupResult{agents: agents, err: err}, nil
}

// HandleLeadCreated starts the assignment of a new lead with attempt 1.
func (s *Service) HandleLeadCreated(ctx context.Context, env events.Envelope) (domain.Assignment, error) {
	e, err := events.Decode[events.LeadCreated](env)
	if err != nil {
		return domain.Assignment{}, err
	}
	if env.AggregateID != events.LeadKey(e.LeadID) {
		return domain.Assignment{}, apperr.Validation(fmt.Sprintf("envelope aggregate %s does not match lead %d", env.AggregateID, e.LeadID))
	}

	result, err := s.lookup(ctx, e.ZipCode)
	if err != nil {
		return domain.Assignment{}, err
	}

	var assignment domain.Assignment
	applied, err := ledger.Guard(ctx, s.store, events.ConsumerAgentNotifier, env, func(tx repository.Tx) error {
		now := s.now()
		a := domain.NewAssignment(e.LeadID, e.ZipCode, now)
		if err := a.Attempt(1, now); err != nil {
			return err
		}
		if err := s.recordOutcome(ctx, tx, &a, result); err != nil {
			return err
		}
		assignment = a
		return nil
	})

	log := s.log.WithContext(ctx)
	if err != nil {
		return domain.Assignment{}, err
	}
	if !applied {
		log.DuplicateEvent(events.ConsumerAgentNotifier, env.Type, env.EventID)
		current, err := s.store.GetByLead(ctx, e.LeadID)
		if err != nil {
			return domain.Assignment{}, err
		}
		// A redelivery after a failed enqueue re-arms the pending retry.
		return current, s.scheduleNext(ctx, current)
	}
	log.EventApplied(events.ConsumerAgentNotifier, env.Type, env.EventID, env.AggregateID)
	return assignment, s.scheduleNext(ctx, assignment)
}

// RetryLookup runs a scheduled attempt. Attempts that are stale or belong to
// a finished assignment are ignored, so duplicate task deliveries are safe.
func (s *Service) RetryLookup(ctx context.Context, leadID int64, attempt int) error {
	current, err := s.store.GetByLead(ctx, leadID)
	if err != nil {
		return err
	}
	if current.State != domain.StatePending || current.Attempts > attempt {
		return nil
	}
	if current.Attempts == attempt {
		// This attempt is stored; its successor may not have been enqueued.
		return s.scheduleNext(ctx, current)
	}

	result, err := s.lookup(ctx, current.ZipCode)
	if err != nil {
		return err
	}

	var updated domain.Assignment
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		a, err := tx.GetForUpdate(ctx, leadID)
		if err != nil {
			return err
		}
		if err := a.Attempt(attempt, s.now()); err != nil {
			return err
		}
		if err := s.recordOutcome(ctx, tx, &a, result); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if apperr.Is(err, apperr.KindConflict) {
		s.log.WithContext(ctx).Debug("agent lookup attempt already handled", "lead_id", leadID, "attempt", attempt)
		return nil
	}
	if err != nil {
		return err
	}
	return s.scheduleNext(ctx, updated)
}

// scheduleNext enqueues the next lookup of a pending assignment. It runs only
// after the attempt is committed; schedulers dedupe on (lead, attempt), so
// calling it again for the same state is harmless.
func (s *Service) scheduleNext(ctx context.Context, a domain.Assignment) error {
	if a.State != domain.StatePending || a.Attempts >= s.settings.MaxAttempts {
		return nil
	}
	delay := domain.RetryDelay(s.settings.Backoff, a.Attempts)
	if err := s.retries.ScheduleAgentLookup(ctx, a.LeadID, a.Attempts+1, delay); err != nil {
		return apperr.Transient(fmt.Sprintf("schedule agent lookup %d for lead %d", a.Attempts+1, a.LeadID), err)
	}
	s.log.WithContext(ctx).Info("agent lookup retry scheduled", "lead_id", a.LeadID, "attempt", a.Attempts+1, "delay", delay.String())
	return nil
}

// recordOutcome persists the result of the current attempt. A miss below the
// attempt budget leaves the assignment pending for scheduleNext; the last
// miss gives up with AgentAssignmentFailed.
func (s *Service) recordOutcome(ctx context.Context, tx repository.Tx, a *domain.Assignment, result lookupResult) error {
	now := s.now()
	log := s.log.WithContext(ctx)

	if result.err == nil && len(result.agents) > 0 {
		a.Assign(result.agents[0].ID, now)
		log.Info("agent assigned", "lead_id", a.LeadID, "agent_id", result.agents[0].ID, "attempt", a.Attempts)
		return tx.Save(ctx, *a)
	}

	reason := result.reason(a.ZipCode)
	if a.Attempts < s.settings.MaxAttempts {
		a.Miss(reason, now)
		log.Info("agent lookup missed", "lead_id", a.LeadID, "attempt", a.Attempts, "reason", reason)
		return tx.Save(ctx, *a)
	}

	a.Fail(reason, now)
	if err := tx.Save(ctx, *a); err != nil {
		return err
	}
	log.Warn("agent assignment failed", "lead_id", a.LeadID, "attempts", a.Attempts, "reason", reason)
	_, err := outbox.Emit(ctx, tx, events.TopicAgents, events.AgentAssignmentFailed{
		BaseEvent: events.BaseEvent{Timestamp: now},
		LeadID:    a.LeadID,
		ZipCode:   a.ZipCode,
		Attempts:  a.Attempts,
		Reason:    reason,
	})
	return err
}
