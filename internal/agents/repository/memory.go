package repository

import (
	"context"
	"fmt"

	"leadflow_backend/internal/agents/domain"
	"leadflow_backend/internal/deadletter"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/memstore"

	"github.com/hashicorp/go-memdb"
)

const assignmentsTable = "agent_assignments"

// NewMemStore creates the agent service memory database.
func NewMemStore() *memstore.Store {
	return memstore.MustNew(
		&memdb.TableSchema{
			Name:    assignmentsTable,
			Indexes: map[string]*memdb.IndexSchema{"id": memstore.IDIndex(&memdb.IntFieldIndex{Field: "LeadID"})},
		},
		ledger.TableSchema(),
		outbox.TableSchema(),
		deadletter.TableSchema(),
	)
}

// MemRepository is the in-memory assignment store.
type MemRepository struct {
	store *memstore.Store
}

func NewMemRepository(store *memstore.Store) *MemRepository {
	return &MemRepository{store: store}
}

func (r *MemRepository) GetByLead(_ context.Context, leadID int64) (domain.Assignment, error) {
	var a domain.Assignment
	err := r.store.Read(func(txn *memdb.Txn) error {
		var err error
		a, err = getAssignment(txn, leadID)
		return err
	})
	return a, err
}

func (r *MemRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return r.store.InTx(ctx, func(txn *memdb.Txn) error {
		return fn(&memTx{txn: txn, MemTx: ledger.NewMemTx(txn), MemWriter: outbox.NewMemWriter(txn)})
	})
}

type memTx struct {
	txn *memdb.Txn
	ledger.MemTx
	outbox.MemWriter
}

func (t *memTx) GetForUpdate(_ context.Context, leadID int64) (domain.Assignment, error) {
	return getAssignment(t.txn, leadID)
}

func (t *memTx) Save(_ context.Context, a domain.Assignment) error {
	stored := a
	return t.txn.Insert(assignmentsTable, &stored)
}

func getAssignment(txn *memdb.Txn, leadID int64) (domain.Assignment, error) {
	obj, err := txn.First(assignmentsTable, "id", leadID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if obj == nil {
		return domain.Assignment{}, apperr.NotFound(fmt.Sprintf("no assignment for lead %d", leadID))
	}
	return *obj.(*domain.Assignment), nil
}

var _ Store = (*MemRepository)(nil)
