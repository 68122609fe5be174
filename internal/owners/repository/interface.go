package repository

import (
	"context"

	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/owners/domain"
)

// HistoryReader serves the owner queries.
type HistoryReader interface {
	// History returns the entries of one lead of one owner, newest first.
	History(ctx context.Context, ownerID string, leadID int64, limit int) ([]domain.Entry, error)
	// ListByOwner returns the latest entry of every lead of an owner.
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Entry, error)
}

// ProjectionWriter is used by the projection consumer inside a unit of work.
type ProjectionWriter interface {
	GetLeadOwner(ctx context.Context, leadID int64) (domain.LeadOwner, error)
	SaveLeadOwner(ctx context.Context, ref domain.LeadOwner) error
	Append(ctx context.Context, entry domain.Entry) error
}

type Tx interface {
	ProjectionWriter
	ledger.Tx
}

type Store interface {
	HistoryReader
	ledger.UnitOfWork[Tx]
}
