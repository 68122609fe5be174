package repository

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/internal/quotes/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	quoteColumns = `id, lead_id, agent_id, amount, decision, created_at, decided_at`

	// onePendingPerLead is the partial unique index on quotes(lead_id)
	// WHERE decision = 'PENDING'.
	onePendingPerLead = "quotes_one_pending_per_lead"
	uniqueViolation   = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, id string) (domain.Quote, error) {
	return scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id), id)
}

func (r *Repository) ListByLead(ctx context.Context, leadID int64) ([]domain.Quote, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE lead_id = $1 ORDER BY created_at DESC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Quote, 0)
	for rows.Next() {
		q, err := scanQuote(rows, "")
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, PGTx: ledger.NewPGTx(tx), PGWriter: outbox.NewPGWriter(tx)})
	})
}

type pgTx struct {
	tx pgx.Tx
	ledger.PGTx
	outbox.PGWriter
}

func (t *pgTx) GetForUpdate(ctx context.Context, id string) (domain.Quote, error) {
	return scanQuote(t.tx.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 FOR UPDATE`, id), id)
}

func (t *pgTx) Create(ctx context.Context, q domain.Quote) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO quotes (id, lead_id, agent_id, amount, decision, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.LeadID, q.AgentID, q.Amount, string(q.Decision), q.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == onePendingPerLead {
		return pendingConflict(q.LeadID)
	}
	return err
}

func (t *pgTx) Update(ctx context.Context, q domain.Quote) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE quotes SET decision = $2, decided_at = $3 WHERE id = $1`,
		q.ID, string(q.Decision), q.DecidedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(q.ID)
	}
	return nil
}

func (t *pgTx) CreateQuoteRequest(ctx context.Context, r domain.QuoteRequest) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO quote_requests (id, lead_id, zip_code, requested_at)
		VALUES ($1, $2, $3, $4)`,
		r.ID, r.LeadID, r.ZipCode, r.RequestedAt,
	)
	return err
}

func scanQuote(row pgx.Row, id string) (domain.Quote, error) {
	var q domain.Quote
	var decision string
	err := row.Scan(&q.ID, &q.LeadID, &q.AgentID, &q.Amount, &decision, &q.CreatedAt, &q.DecidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quote{}, notFound(id)
	}
	if err != nil {
		return domain.Quote{}, err
	}
	q.Decision = domain.Decision(decision)
	return q, nil
}

func notFound(id string) error {
	return apperr.NotFound(fmt.Sprintf("quote %s not found", id))
}

func pendingConflict(leadID int64) error {
	return apperr.Conflict(fmt.Sprintf("lead %d already has a pending quote", leadID))
}

var _ Store = (*Repository)(nil)
