package deadletter

import (
	"context"
	"sort"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/memstore"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
)

const memTable = "dead_letters"

// TableSchema is the go-memdb table backing MemRepository.
func TableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: memTable,
		Indexes: map[string]*memdb.IndexSchema{
			"id": memstore.IDIndex(&memdb.StringFieldIndex{Field: "Key"}),
		},
	}
}

type memRecord struct {
	Key string
	Record
}

// MemRepository stores dead letters in a memory store that also holds the
// outbox table.
type MemRepository struct {
	store *memstore.Store
}

func NewMemRepository(store *memstore.Store) *MemRepository {
	return &MemRepository{store: store}
}

func (r *MemRepository) Save(ctx context.Context, rec Record, announce events.Envelope) error {
	return r.store.InTx(ctx, func(txn *memdb.Txn) error {
		if err := txn.Insert(memTable, &memRecord{Key: rec.ID.String(), Record: rec}); err != nil {
			return err
		}
		return outbox.NewMemWriter(txn).Enqueue(ctx, events.TopicDeadLetter, announce)
	})
}

func (r *MemRepository) Get(_ context.Context, id uuid.UUID) (Record, error) {
	var rec Record
	err := r.store.Read(func(txn *memdb.Txn) error {
		obj, err := txn.First(memTable, "id", id.String())
		if err != nil {
			return err
		}
		if obj == nil {
			return apperr.NotFound("dead letter not found")
		}
		rec = obj.(*memRecord).Record
		return nil
	})
	return rec, err
}

func (r *MemRepository) List(_ context.Context, filter ListFilter) ([]Record, error) {
	var out []Record
	err := r.store.Read(func(txn *memdb.Txn) error {
		it, err := txn.Get(memTable, "id")
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			rec := obj.(*memRecord).Record
			if filter.Consumer != "" && rec.Consumer != filter.Consumer {
				continue
			}
			if !filter.IncludeReplayed && rec.ReplayedAt != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemRepository) MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.store.InTx(ctx, func(txn *memdb.Txn) error {
		obj, err := txn.First(memTable, "id", id.String())
		if err != nil {
			return err
		}
		if obj == nil {
			return apperr.NotFound("dead letter not found")
		}
		updated := *obj.(*memRecord)
		updated.ReplayedAt = &at
		return txn.Insert(memTable, &updated)
	})
}

var _ Repository = (*MemRepository)(nil)
