package repository

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/owners/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) History(ctx context.Context, ownerID string, leadID int64, limit int) ([]domain.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, owner_id, lead_id, status, reason, updated_at, event_id
		FROM owner_lead_history
		WHERE owner_id = $1 AND lead_id = $2
		ORDER BY updated_at DESC, seq DESC
		LIMIT $3`, ownerID, leadID, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (lead_id) seq, owner_id, lead_id, status, reason, updated_at, event_id
		FROM owner_lead_history
		WHERE owner_id = $1
		ORDER BY lead_id, updated_at DESC, seq DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	domain.SortNewestFirst(entries)
	return entries, nil
}

func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, PGTx: ledger.NewPGTx(tx)})
	})
}

type pgTx struct {
	tx pgx.Tx
	ledger.PGTx
}

func (t *pgTx) GetLeadOwner(ctx context.Context, leadID int64) (domain.LeadOwner, error) {
	var ref domain.LeadOwner
	err := t.tx.QueryRow(ctx,
		`SELECT lead_id, owner_id, created_at FROM lead_owners WHERE lead_id = $1`, leadID,
	).Scan(&ref.LeadID, &ref.OwnerID, &ref.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeadOwner{}, apperr.NotFound(fmt.Sprintf("owner of lead %d not projected yet", leadID))
	}
	return ref, err
}

func (t *pgTx) SaveLeadOwner(ctx context.Context, ref domain.LeadOwner) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO lead_owners (lead_id, owner_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (lead_id) DO NOTHING`,
		ref.LeadID, ref.OwnerID, ref.CreatedAt,
	)
	return err
}

func (t *pgTx) Append(ctx context.Context, e domain.Entry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO owner_lead_history (owner_id, lead_id, status, reason, updated_at, event_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.OwnerID, e.LeadID, e.Status, e.Reason, e.UpdatedAt, e.EventID,
	)
	return err
}

func collectEntries(rows pgx.Rows) ([]domain.Entry, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Entry, error) {
		var e domain.Entry
		err := row.Scan(&e.Seq, &e.OwnerID, &e.LeadID, &e.Status, &e.Reason, &e.UpdatedAt, &e.EventID)
		return e, err
	})
}

var _ Store = (*Repository)(nil)
