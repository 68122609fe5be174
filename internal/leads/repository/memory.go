package repository

import (
	"context"
	"sync/atomic"

	"leadflow_backend/internal/deadletter"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/memstore"

	"github.com/hashicorp/go-memdb"
)

const leadsTable = "leads"

// NewMemStore creates the lead service memory database: leads, ledger,
// outbox and dead letters.
func NewMemStore() *memstore.Store {
	return memstore.MustNew(
		&memdb.TableSchema{
			Name:    leadsTable,
			Indexes: map[string]*memdb.IndexSchema{"id": memstore.IDIndex(&memdb.IntFieldIndex{Field: "ID"})},
		},
		ledger.TableSchema(),
		outbox.TableSchema(),
		deadletter.TableSchema(),
	)
}

// MemRepository is the in-memory lead store.
type MemRepository struct {
	store  *memstore.Store
	nextID atomic.Int64
}

func NewMemRepository(store *memstore.Store) *MemRepository {
	return &MemRepository{store: store}
}

func (r *MemRepository) GetByID(_ context.Context, id int64) (domain.Lead, error) {
	var lead domain.Lead
	err := r.store.Read(func(txn *memdb.Txn) error {
		var err error
		lead, err = getLead(txn, id)
		return err
	})
	return lead, err
}

func (r *MemRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return r.store.InTx(ctx, func(txn *memdb.Txn) error {
		return fn(&memTx{txn: txn, repo: r, MemTx: ledger.NewMemTx(txn), MemWriter: outbox.NewMemWriter(txn)})
	})
}

type memTx struct {
	txn  *memdb.Txn
	repo *MemRepository
	ledger.MemTx
	outbox.MemWriter
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (domain.Lead, error) {
	return getLead(t.txn, id)
}

func (t *memTx) Create(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	lead.ID = t.repo.nextID.Add(1)
	stored := lead
	if err := t.txn.Insert(leadsTable, &stored); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

func (t *memTx) Update(_ context.Context, lead domain.Lead) error {
	if _, err := getLead(t.txn, lead.ID); err != nil {
		return err
	}
	stored := lead
	return t.txn.Insert(leadsTable, &stored)
}

func (t *memTx) Delete(_ context.Context, id int64) error {
	lead, err := getLead(t.txn, id)
	if err != nil {
		return err
	}
	return t.txn.Delete(leadsTable, &lead)
}

func getLead(txn *memdb.Txn, id int64) (domain.Lead, error) {
	obj, err := txn.First(leadsTable, "id", id)
	if err != nil {
		return domain.Lead{}, err
	}
	if obj == nil {
		return domain.Lead{}, notFound(id)
	}
	return *obj.(*domain.Lead), nil
}

var _ Store = (*MemRepository)(nil)
