// Package deadletter keeps envelopes that a consumer gave up on, announces
// them on the dead-letter topic and replays them on request.
package deadletter

import (
	"context"
	"time"

	"leadflow_backend/internal/events"

	"github.com/google/uuid"
)

// Record is a dead-lettered envelope. Envelope is stored whole so a replay
// is bit-identical to the original delivery.
type Record struct {
	ID         uuid.UUID
	Topic      string
	Consumer   string
	EventID    string
	EventType  string
	LeadID     string
	Envelope   events.Envelope
	Reason     string
	Attempts   int
	FailedAt   time.Time
	ReplayedAt *time.Time
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	Consumer        string
	IncludeReplayed bool
	Limit           int
}

// Repository persists dead letters.
type Repository interface {
	// Save stores rec and enqueues announce on the outbox in one transaction.
	Save(ctx context.Context, rec Record, announce events.Envelope) error
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)
	MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error
}

const defaultListLimit = 100
