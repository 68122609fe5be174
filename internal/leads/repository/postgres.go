package repository

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leadColumns = `id, property_id, owner_id, zip_code, status, requote_count, pending_quotes, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, id int64) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id), id)
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

func (t *pgTx) GetForUpdate(ctx context.Context, id int64) (domain.Lead, error) {
	return scanLead(t.tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 FOR UPDATE`, id), id)
}

func (t *pgTx) Create(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO leads (property_id, owner_id, zip_code, status, requote_count, pending_quotes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		lead.PropertyID, lead.OwnerID, lead.ZipCode, string(lead.Status), lead.RequoteCount, lead.PendingQuotes, lead.CreatedAt, lead.UpdatedAt,
	).Scan(&lead.ID)
	if err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

func (t *pgTx) Update(ctx context.Context, lead domain.Lead) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE leads
		SET status = $2, requote_count = $3, pending_quotes = $4, updated_at = $5
		WHERE id = $1`,
		lead.ID, string(lead.Status), lead.RequoteCount, lead.PendingQuotes, lead.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(lead.ID)
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func scanLead(row pgx.Row, id int64) (domain.Lead, error) {
	var lead domain.Lead
	var status string
	err := row.Scan(&lead.ID, &lead.PropertyID, &lead.OwnerID, &lead.ZipCode, &status,
		&lead.RequoteCount, &lead.PendingQuotes, &lead.CreatedAt, &lead.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, notFound(id)
	}
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Status = domain.Status(status)
	return lead, nil
}

func notFound(id int64) error {
	return apperr.NotFound(fmt.Sprintf("lead %d not found", id))
}

var _ Store = (*Repository)(nil)
