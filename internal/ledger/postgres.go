package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTx is the ledger view of a pgx transaction.
type PGTx struct {
	tx pgx.Tx
}

// NewPGTx binds the ledger to tx.
func NewPGTx(tx pgx.Tx) PGTx {
	return PGTx{tx: tx}
}

// Seen reports whether consumer already applied eventID.
func (t PGTx) Seen(ctx context.Context, consumer, eventID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM idempotency_ledger WHERE consumer_name = $1 AND event_id = $2
		)`,
		consumer, eventID,
	).Scan(&exists)
	return exists, err
}

// Record inserts the ledger row. A concurrent duplicate violates the primary
// key and aborts the transaction, which the bus turns into a redelivery that
// then takes the duplicate path.
func (t PGTx) Record(ctx context.Context, consumer, eventID string, appliedAt time.Time) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO idempotency_ledger (consumer_name, event_id, applied_at) VALUES ($1, $2, $3)`,
		consumer, eventID, appliedAt,
	)
	return err
}

// Repository serves ledger bookkeeping outside a unit of work.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a Postgres ledger repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Count returns how many events consumer has applied.
func (r *Repository) Count(ctx context.Context, consumer string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM idempotency_ledger WHERE consumer_name = $1`, consumer,
	).Scan(&n)
	return n, err
}

// Prune deletes records applied before appliedBefore.
func (r *Repository) Prune(ctx context.Context, appliedBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM idempotency_ledger WHERE applied_at < $1`, appliedBefore,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var (
	_ Tx    = PGTx{}
	_ Store = (*Repository)(nil)
)
