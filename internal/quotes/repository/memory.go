package repository

import (
	"context"
	"sort"

	"leadflow_backend/internal/deadletter"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/internal/quotes/domain"
	"leadflow_backend/platform/memstore"

	"github.com/hashicorp/go-memdb"
)

const (
	quotesTable   = "quotes"
	requestsTable = "quote_requests"
)

// NewMemStore creates the quote service memory database.
func NewMemStore() *memstore.Store {
	return memstore.MustNew(
		&memdb.TableSchema{
			Name: quotesTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id":   memstore.IDIndex(&memdb.StringFieldIndex{Field: "ID"}),
				"lead": {Name: "lead", Indexer: &memdb.IntFieldIndex{Field: "LeadID"}},
			},
		},
		&memdb.TableSchema{
			Name:    requestsTable,
			Indexes: map[string]*memdb.IndexSchema{"id": memstore.IDIndex(&memdb.IntFieldIndex{Field: "LeadID"})},
		},
		ledger.TableSchema(),
		outbox.TableSchema(),
		deadletter.TableSchema(),
	)
}

// MemRepository is the in-memory quote store.
type MemRepository struct {
	store *memstore.Store
}

func NewMemRepository(store *memstore.Store) *MemRepository {
	return &MemRepository{store: store}
}

func (r *MemRepository) GetByID(_ context.Context, id string) (domain.Quote, error) {
	var q domain.Quote
	err := r.store.Read(func(txn *memdb.Txn) error {
		var err error
		q, err = getQuote(txn, id)
		return err
	})
	return q, err
}

func (r *MemRepository) ListByLead(_ context.Context, leadID int64) ([]domain.Quote, error) {
	items := make([]domain.Quote, 0)
	err := r.store.Read(func(txn *memdb.Txn) error {
		var err error
		items, err = quotesForLead(txn, leadID)
		return err
	})
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, err
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

func (t *memTx) GetForUpdate(_ context.Context, id string) (domain.Quote, error) {
	return getQuote(t.txn, id)
}

func (t *memTx) Create(_ context.Context, q domain.Quote) error {
	existing, err := quotesForLead(t.txn, q.LeadID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.Decision == domain.DecisionPending {
			return pendingConflict(q.LeadID)
		}
	}
	stored := q
	return t.txn.Insert(quotesTable, &stored)
}

func (t *memTx) Update(_ context.Context, q domain.Quote) error {
	if _, err := getQuote(t.txn, q.ID); err != nil {
		return err
	}
	stored := q
	return t.txn.Insert(quotesTable, &stored)
}

func (t *memTx) CreateQuoteRequest(_ context.Context, r domain.QuoteRequest) error {
	stored := r
	return t.txn.Insert(requestsTable, &stored)
}

func getQuote(txn *memdb.Txn, id string) (domain.Quote, error) {
	obj, err := txn.First(quotesTable, "id", id)
	if err != nil {
		return domain.Quote{}, err
	}
	if obj == nil {
		return domain.Quote{}, notFound(id)
	}
	return *obj.(*domain.Quote), nil
}

func quotesForLead(txn *memdb.Txn, leadID int64) ([]domain.Quote, error) {
	it, err := txn.Get(quotesTable, "lead", leadID)
	if err != nil {
		return nil, err
	}
	items := make([]domain.Quote, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		items = append(items, *obj.(*domain.Quote))
	}
	return items, nil
}

var _ Store = (*MemRepository)(nil)
