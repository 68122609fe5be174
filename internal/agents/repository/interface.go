package repository

import (
	"context"

	"leadflow_backend/internal/agents/domain"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
)

// AssignmentReader provides read-only access outside a unit of work.
type AssignmentReader interface {
	GetByLead(ctx context.Context, leadID int64) (domain.Assignment, error)
}

// AssignmentWriter provides writes inside a unit of work.
type AssignmentWriter interface {
	GetForUpdate(ctx context.Context, leadID int64) (domain.Assignment, error)
	// Save inserts or replaces the assignment of a lead.
	Save(ctx context.Context, a domain.Assignment) error
}

// Tx is everything one assignment unit of work can touch.
type Tx interface {
	AssignmentWriter
	ledger.Tx
	outbox.Writer
}

// Store is the agent service persistence surface.
type Store interface {
	AssignmentReader
	ledger.UnitOfWork[Tx]
}
