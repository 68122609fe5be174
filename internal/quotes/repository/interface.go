package repository

import (
	"context"

	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/internal/quotes/domain"
)

// QuoteReader provides read-only access outside a unit of work.
type QuoteReader interface {
	GetByID(ctx context.Context, id string) (domain.Quote, error)
	ListByLead(ctx context.Context, leadID int64) ([]domain.Quote, error)
}

// QuoteWriter provides writes inside a unit of work.
type QuoteWriter interface {
	GetForUpdate(ctx context.Context, id string) (domain.Quote, error)
	// Create fails with a Conflict error when the lead already has a
	// pending quote.
	Create(ctx context.Context, q domain.Quote) error
	Update(ctx context.Context, q domain.Quote) error
	CreateQuoteRequest(ctx context.Context, r domain.QuoteRequest) error
}

// Tx is everything one quote unit of work can touch.
type Tx interface {
	QuoteWriter
	ledger.Tx
	outbox.Writer
}

// Store is the quote service persistence surface.
type Store interface {
	QuoteReader
	ledger.UnitOfWork[Tx]
}
