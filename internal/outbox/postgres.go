package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"leadflow_backend/platform/events"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// relayLockKey serializes relays of one service database, so two replicas
// never publish interleaved batches.
const relayLockKey int64 = 0x6c6561646f7574 // "leadout"

// PGWriter enqueues envelopes on a pgx transaction.
type PGWriter struct {
	tx pgx.Tx
}

// NewPGWriter binds the outbox to tx.
func NewPGWriter(tx pgx.Tx) PGWriter {
	return PGWriter{tx: tx}
}

// Enqueue implements Writer.
func (w PGWriter) Enqueue(ctx context.Context, topic string, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	_, err = w.tx.Exec(ctx,
		`INSERT INTO outbox (topic, event_id, aggregate_id, envelope, status)
		 VALUES ($1, $2, $3, $4, 'pending')`,
		topic, env.EventID, env.AggregateID, data,
	)
	return err
}

// Repository is the Postgres relay store.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Drain implements Store.
func (r *Repository) Drain(ctx context.Context, limit int, publish func(Record) error) (int, error) {
	if limit < 1 {
		limit = defaultBatchSize
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, relayLockKey).Scan(&locked); err != nil {
		return 0, err
	}
	if !locked {
		return 0, nil
	}

	rows, err := tx.Query(ctx,
		`SELECT seq, topic, event_id, aggregate_id, envelope, status, attempts, last_error, created_at
		 FROM outbox
		 WHERE status = 'pending'
		 ORDER BY seq ASC
		 LIMIT $1
		 FOR UPDATE`, limit)
	if err != nil {
		return 0, err
	}
	records, err := scanRecords(rows)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, rec := range records {
		if err := publish(rec); err != nil {
			msg := err.Error()
			if _, uerr := tx.Exec(ctx,
				`UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE seq = $1`,
				rec.Seq, msg,
			); uerr != nil {
				return published, uerr
			}
			break
		}
		if _, err := tx.Exec(ctx,
			`UPDATE outbox SET status = 'published', attempts = attempts + 1, last_error = NULL, published_at = now()
			 WHERE seq = $1`,
			rec.Seq,
		); err != nil {
			return published, err
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return published, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var rec Record
		var status string
		var raw []byte
		if err := rows.Scan(&rec.Seq, &rec.Topic, &rec.EventID, &rec.AggregateID, &raw, &status, &rec.Attempts, &rec.LastError, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &rec.Envelope); err != nil {
			return nil, fmt.Errorf("decode outbox %d: %w", rec.Seq, err)
		}
		rec.Status = Status(status)
		results = append(results, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

var (
	_ Writer = PGWriter{}
	_ Store  = (*Repository)(nil)
)
