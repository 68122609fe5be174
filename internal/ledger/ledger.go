// Package ledger implements the per-consumer idempotency ledger that turns
// at-least-once delivery into effectively-once application.
//
// A ledger record (consumer, eventId) is written in the same transaction as
// the side effect it guards. If either write fails, neither is kept, so a
// redelivery after a failure is always safe to apply.
package ledger

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/platform/events"
)

// Record marks one event as applied by one consumer. Records are never
// updated; they are deleted only by retention cleanup.
type Record struct {
	Consumer  string
	EventID   string
	AppliedAt time.Time
}

// Tx is the ledger's view of a unit of work.
type Tx interface {
	Seen(ctx context.Context, consumer, eventID string) (bool, error)
	Record(ctx context.Context, consumer, eventID string, appliedAt time.Time) error
}

// UnitOfWork runs fn in a transaction that commits only if fn returns nil.
type UnitOfWork[T Tx] interface {
	InTx(ctx context.Context, fn func(tx T) error) error
}

// Store is the non-transactional ledger surface used for bookkeeping.
type Store interface {
	Count(ctx context.Context, consumer string) (int, error)
	Prune(ctx context.Context, appliedBefore time.Time) (int64, error)
}

var errDuplicate = errors.New("event already applied")

// Guard applies env exactly once for consumer. When the ledger already holds
// the event id, apply is not called, nothing is written, and Guard reports
// applied=false with a nil error. Otherwise apply runs and the ledger record
// is inserted in the same transaction.
func Guard[T Tx](ctx context.Context, uow UnitOfWork[T], consumer string, env events.Envelope, apply func(tx T) error) (bool, error) {
	err := uow.InTx(ctx, func(tx T) error {
		seen, err := tx.Seen(ctx, consumer, env.EventID)
		if err != nil {
			return err
		}
		if seen {
			return errDuplicate
		}
		if err := apply(tx); err != nil {
			return err
		}
		return tx.Record(ctx, consumer, env.EventID, time.Now().UTC())
	})
	if errors.Is(err, errDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
