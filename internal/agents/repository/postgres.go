package repository

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/agents/domain"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const assignmentColumns = `lead_id, zip_code, state, agent_id, attempts, last_error, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByLead(ctx context.Context, leadID int64) (domain.Assignment, error) {
	return scanAssignment(r.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM agent_assignments WHERE lead_id = $1`, leadID), leadID)
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

func (t *pgTx) GetForUpdate(ctx context.Context, leadID int64) (domain.Assignment, error) {
	return scanAssignment(t.tx.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM agent_assignments WHERE lead_id = $1 FOR UPDATE`, leadID), leadID)
}

func (t *pgTx) Save(ctx context.Context, a domain.Assignment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO agent_assignments (lead_id, zip_code, state, agent_id, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (lead_id) DO UPDATE SET
			state = EXCLUDED.state,
			agent_id = EXCLUDED.agent_id,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		a.LeadID, a.ZipCode, string(a.State), a.AgentID, a.Attempts, a.LastError, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func scanAssignment(row pgx.Row, leadID int64) (domain.Assignment, error) {
	var a domain.Assignment
	var state string
	err := row.Scan(&a.LeadID, &a.ZipCode, &state, &a.AgentID, &a.Attempts, &a.LastError, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, apperr.NotFound(fmt.Sprintf("no assignment for lead %d", leadID))
	}
	if err != nil {
		return domain.Assignment{}, err
	}
	a.State = domain.State(state)
	return a, nil
}

var _ Store = (*Repository)(nil)
