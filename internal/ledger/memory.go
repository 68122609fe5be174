package ledger

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/platform/memstore"

	"github.com/hashicorp/go-memdb"
)

const memTable = "idempotency_ledger"

// TableSchema is the go-memdb table backing the in-memory ledger. Services
// include it in their memory store so ledger and side effect share a txn.
func TableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: memTable,
		Indexes: map[string]*memdb.IndexSchema{
			"id": memstore.IDIndex(&memdb.CompoundIndex{Indexes: []memdb.Indexer{
				&memdb.StringFieldIndex{Field: "Consumer"},
				&memdb.StringFieldIndex{Field: "EventID"},
			}}),
			"consumer": {Name: "consumer", Indexer: &memdb.StringFieldIndex{Field: "Consumer"}},
		},
	}
}

// MemTx is the ledger view of a go-memdb write transaction.
type MemTx struct {
	txn *memdb.Txn
}

// NewMemTx binds the ledger to txn.
func NewMemTx(txn *memdb.Txn) MemTx {
	return MemTx{txn: txn}
}

// Seen reports whether consumer already applied eventID.
func (t MemTx) Seen(_ context.Context, consumer, eventID string) (bool, error) {
	obj, err := t.txn.First(memTable, "id", consumer, eventID)
	if err != nil {
		return false, err
	}
	return obj != nil, nil
}

// Record inserts the ledger row, failing on a duplicate key like the
// Postgres primary key does.
func (t MemTx) Record(ctx context.Context, consumer, eventID string, appliedAt time.Time) error {
	seen, err := t.Seen(ctx, consumer, eventID)
	if err != nil {
		return err
	}
	if seen {
		return fmt.Errorf("ledger: duplicate record (%s, %s)", consumer, eventID)
	}
	return t.txn.Insert(memTable, &Record{Consumer: consumer, EventID: eventID, AppliedAt: appliedAt})
}

// MemRepository serves ledger bookkeeping for a memory store.
type MemRepository struct {
	store *memstore.Store
}

// NewMemRepository creates a bookkeeping view over store.
func NewMemRepository(store *memstore.Store) *MemRepository {
	return &MemRepository{store: store}
}

// Count returns how many events consumer has applied.
func (r *MemRepository) Count(_ context.Context, consumer string) (int, error) {
	n := 0
	err := r.store.Read(func(txn *memdb.Txn) error {
		it, err := txn.Get(memTable, "consumer", consumer)
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Prune deletes records applied before appliedBefore.
func (r *MemRepository) Prune(ctx context.Context, appliedBefore time.Time) (int64, error) {
	var deleted int64
	err := r.store.InTx(ctx, func(txn *memdb.Txn) error {
		it, err := txn.Get(memTable, "id")
		if err != nil {
			return err
		}
		var stale []*Record
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if rec := obj.(*Record); rec.AppliedAt.Before(appliedBefore) {
				stale = append(stale, rec)
			}
		}
		for _, rec := range stale {
			if err := txn.Delete(memTable, rec); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

var (
	_ Tx    = MemTx{}
	_ Store = (*MemRepository)(nil)
)
