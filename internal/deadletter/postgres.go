package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository stores dead letters in the service database.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectColumns = `id, topic, consumer_name, event_id, event_type, lead_id, envelope, reason, attempts, failed_at, replayed_at`

func (r *PGRepository) Save(ctx context.Context, rec Record, announce events.Envelope) error {
	data, err := json.Marshal(rec.Envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO dead_letters (id, topic, consumer_name, event_id, event_type, lead_id, envelope, reason, attempts, failed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, rec.Topic, rec.Consumer, rec.EventID, rec.EventType, rec.LeadID, data, rec.Reason, rec.Attempts, rec.FailedAt,
		); err != nil {
			return err
		}
		return outbox.NewPGWriter(tx).Enqueue(ctx, events.TopicDeadLetter, announce)
	})
}

func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM dead_letters WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound("dead letter not found")
	}
	return rec, err
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM dead_letters
		 WHERE ($1 = '' OR consumer_name = $1)
		   AND ($2 OR replayed_at IS NULL)
		 ORDER BY failed_at DESC
		 LIMIT $3`,
		filter.Consumer, filter.IncludeReplayed, filter.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PGRepository) MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE dead_letters SET replayed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("dead letter not found")
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var raw []byte
	if err := row.Scan(&rec.ID, &rec.Topic, &rec.Consumer, &rec.EventID, &rec.EventType, &rec.LeadID,
		&raw, &rec.Reason, &rec.Attempts, &rec.FailedAt, &rec.ReplayedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(raw, &rec.Envelope); err != nil {
		return Record{}, fmt.Errorf("decode dead letter %s: %w", rec.ID, err)
	}
	return rec, nil
}

var _ Repository = (*PGRepository)(nil)
