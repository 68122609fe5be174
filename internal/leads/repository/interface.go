package repository

import (
	"context"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data outside a unit of work.
type LeadReader interface {
	GetByID(ctx context.Context, id int64) (domain.Lead, error)
}

// LeadWriter provides lead writes inside a unit of work. GetForUpdate holds
// the lead until the unit of work ends.
type LeadWriter interface {
	GetForUpdate(ctx context.Context, id int64) (domain.Lead, error)
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Update(ctx context.Context, lead domain.Lead) error
	Delete(ctx context.Context, id int64) error
}

// Tx is everything one lead unit of work can touch: the lead table, the
// ledger and the outbox, all committed together.
type Tx interface {
	LeadWriter
	ledger.Tx
	outbox.Writer
}

// Store is the lead service persistence surface.
type Store interface {
	LeadReader
	ledger.UnitOfWork[Tx]
}
