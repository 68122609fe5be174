package deadletter

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Service is both the bus dead-letter sink and the operator surface.
type Service struct {
	repo Repository
	bus  events.Publisher
	log  *logger.Logger
}

func New(repo Repository, bus events.Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, bus: bus, log: log}
}

// DeadLetter implements events.DeadLetterSink. A failure here makes the bus
// keep the envelope unacknowledged, so nothing is lost.
func (s *Service) DeadLetter(ctx context.Context, dl events.DeadLetter) error {
	rec := Record{
		ID:        uuid.New(),
		Topic:     dl.Topic,
		Consumer:  dl.Consumer,
		EventID:   dl.Envelope.EventID,
		EventType: dl.Envelope.Type,
		LeadID:    dl.Envelope.AggregateID,
		Envelope:  dl.Envelope,
		Reason:    dl.Reason,
		Attempts:  dl.Attempts,
		FailedAt:  dl.FailedAt,
	}
	if rec.FailedAt.IsZero() {
		rec.FailedAt = time.Now().UTC()
	}

	announce, err := events.NewEnvelope(events.DeadLettered{
		BaseEvent:    events.BaseEvent{Timestamp: rec.FailedAt},
		DeadLetterID: rec.ID.String(),
		Topic:        rec.Topic,
		Consumer:     rec.Consumer,
		Reason:       rec.Reason,
		Attempts:     rec.Attempts,
		Original:     rec.Envelope,
	})
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, rec, announce); err != nil {
		s.log.DatabaseError("save dead letter", err)
		return fmt.Errorf("save dead letter: %w", err)
	}
	return nil
}

// List returns dead letters newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = defaultListLimit
	}
	return s.repo.List(ctx, filter)
}

// Replay republishes the original envelope to its original topic. Every
// consumer group on the topic receives it again; consumers that already
// applied it skip it through their ledger.
func (s *Service) Replay(ctx context.Context, id uuid.UUID) (Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := s.bus.Publish(ctx, rec.Topic, rec.Envelope); err != nil {
		return Record{}, apperr.Transient("replay publish failed", err)
	}

	now := time.Now().UTC()
	if err := s.repo.MarkReplayed(ctx, id, now); err != nil {
		return Record{}, err
	}
	rec.ReplayedAt = &now

	s.log.Info("dead letter replayed",
		"dead_letter_id", rec.ID, "topic", rec.Topic, "consumer", rec.Consumer, "event_id", rec.EventID)
	return rec, nil
}

var _ events.DeadLetterSink = (*Service)(nil)
