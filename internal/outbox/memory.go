package outbox

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"leadflow_backend/platform/events"
	"leadflow_backend/platform/memstore"

	"github.com/hashicorp/go-memdb"
)

const memTable = "outbox"

// memSeq orders records across every memory outbox in the process. Gaps
// left by aborted transactions are harmless.
var memSeq atomic.Int64

// TableSchema is the go-memdb table backing the in-memory outbox. Services
// include it in their memory store next to their state tables.
func TableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: memTable,
		Indexes: map[string]*memdb.IndexSchema{
			"id":     memstore.IDIndex(&memdb.StringFieldIndex{Field: "EventID"}),
			"status": {Name: "status", Indexer: &memdb.StringFieldIndex{Field: "Status"}},
		},
	}
}

// MemWriter enqueues envelopes on a go-memdb write transaction.
type MemWriter struct {
	txn *memdb.Txn
}

func NewMemWriter(txn *memdb.Txn) MemWriter {
	return MemWriter{txn: txn}
}

// Enqueue implements Writer. A second envelope with the same event id is
// rejected like the Postgres unique constraint does.
func (w MemWriter) Enqueue(_ context.Context, topic string, env events.Envelope) error {
	existing, err := w.txn.First(memTable, "id", env.EventID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("outbox: duplicate event id %s", env.EventID)
	}
	return w.txn.Insert(memTable, &Record{
		Seq:         memSeq.Add(1),
		Topic:       topic,
		EventID:     env.EventID,
		AggregateID: env.AggregateID,
		Envelope:    env,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	})
}

// MemRepository is the relay store over a memory store.
type MemRepository struct {
	store *memstore.Store
}

func NewMemRepository(store *memstore.Store) *MemRepository {
	return &MemRepository{store: store}
}

// Drain implements Store.
func (r *MemRepository) Drain(ctx context.Context, limit int, publish func(Record) error) (int, error) {
	if limit < 1 {
		limit = defaultBatchSize
	}

	published := 0
	err := r.store.InTx(ctx, func(txn *memdb.Txn) error {
		pending, err := pendingRecords(txn)
		if err != nil {
			return err
		}
		if len(pending) > limit {
			pending = pending[:limit]
		}

		for _, rec := range pending {
			updated := *rec
			updated.Attempts++
			if err := publish(*rec); err != nil {
				msg := err.Error()
				updated.LastError = &msg
				return txn.Insert(memTable, &updated)
			}
			now := time.Now().UTC()
			updated.Status = StatusPublished
			updated.LastError = nil
			updated.PublishedAt = &now
			if err := txn.Insert(memTable, &updated); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

// Pending lists unpublished records, oldest first.
func (r *MemRepository) Pending() ([]Record, error) {
	var out []Record
	err := r.store.Read(func(txn *memdb.Txn) error {
		pending, err := pendingRecords(txn)
		if err != nil {
			return err
		}
		for _, rec := range pending {
			out = append(out, *rec)
		}
		return nil
	})
	return out, err
}

func pendingRecords(txn *memdb.Txn) ([]*Record, error) {
	it, err := txn.Get(memTable, "status", string(StatusPending))
	if err != nil {
		return nil, err
	}
	var pending []*Record
	for obj := it.Next(); obj != nil; obj = it.Next() {
		pending = append(pending, obj.(*Record))
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
	return pending, nil
}

var (
	_ Writer = MemWriter{}
	_ Store  = (*MemRepository)(nil)
)
