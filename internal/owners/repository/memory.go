package repository

import (
	"context"
	"fmt"
	"sync/atomic"

	"leadflow_backend/internal/deadletter"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/internal/owners/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/memstore"

	"github.com/hashicorp/go-memdb"
)

const (
	leadOwnersTable = "lead_owners"
	historyTable    = "owner_lead_history"
)

// NewMemStore creates the owner service memory database. The outbox table
// carries dead-letter announcements.
func NewMemStore() *memstore.Store {
	return memstore.MustNew(
		&memdb.TableSchema{
			Name:    leadOwnersTable,
			Indexes: map[string]*memdb.IndexSchema{"id": memstore.IDIndex(&memdb.IntFieldIndex{Field: "LeadID"})},
		},
		&memdb.TableSchema{
			Name: historyTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id":    memstore.IDIndex(&memdb.StringFieldIndex{Field: "EventID"}),
				"owner": {Name: "owner", Indexer: &memdb.StringFieldIndex{Field: "OwnerID"}},
			},
		},
		ledger.TableSchema(),
		outbox.TableSchema(),
		deadletter.TableSchema(),
	)
}

type MemRepository struct {
	store *memstore.Store
	seq   atomic.Int64
}

func NewMemRepository(store *memstore.Store) *MemRepository {
	return &MemRepository{store: store}
}

func (r *MemRepository) History(_ context.Context, ownerID string, leadID int64, limit int) ([]domain.Entry, error) {
	entries, err := r.byOwner(ownerID)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	domain.SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.Entry, error) {
	entries, err := r.byOwner(ownerID)
	if err != nil {
		return nil, err
	}
	domain.SortNewestFirst(entries)
	seen := make(map[int64]bool)
	var out []domain.Entry
	for _, e := range entries {
		if !seen[e.LeadID] {
			seen[e.LeadID] = true
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemRepository) byOwner(ownerID string) ([]domain.Entry, error) {
	var out []domain.Entry
	err := r.store.Read(func(txn *memdb.Txn) error {
		it, err := txn.Get(historyTable, "owner", ownerID)
		if err != nil {
			return err
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			out = append(out, *obj.(*domain.Entry))
		}
		return nil
	})
	return out, err
}

func (r *MemRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return r.store.InTx(ctx, func(txn *memdb.Txn) error {
		return fn(&memTx{txn: txn, MemTx: ledger.NewMemTx(txn), seq: &r.seq})
	})
}

type memTx struct {
	txn *memdb.Txn
	ledger.MemTx
	seq *atomic.Int64
}

func (t *memTx) GetLeadOwner(_ context.Context, leadID int64) (domain.LeadOwner, error) {
	obj, err := t.txn.First(leadOwnersTable, "id", leadID)
	if err != nil {
		return domain.LeadOwner{}, err
	}
	if obj == nil {
		return domain.LeadOwner{}, apperr.NotFound(fmt.Sprintf("owner of lead %d not projected yet", leadID))
	}
	return *obj.(*domain.LeadOwner), nil
}

func (t *memTx) SaveLeadOwner(_ context.Context, ref domain.LeadOwner) error {
	existing, err := t.txn.First(leadOwnersTable, "id", ref.LeadID)
	if err != nil || existing != nil {
		return err
	}
	stored := ref
	return t.txn.Insert(leadOwnersTable, &stored)
}

func (t *memTx) Append(_ context.Context, e domain.Entry) error {
	stored := e
	stored.Seq = t.seq.Add(1)
	return t.txn.Insert(historyTable, &stored)
}

var _ Store = (*MemRepository)(nil)
