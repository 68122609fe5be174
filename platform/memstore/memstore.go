// Package memstore provides transactional in-memory storage on go-memdb.
// Domain repositories build their memory implementations on it so tests and
// single-process deployments keep the same all-or-nothing unit of work as
// the Postgres stores.
package memstore

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"
)

// Store is a go-memdb database with an InTx helper.
type Store struct {
	db *memdb.MemDB
}

// New creates a store with the given tables.
func New(tables ...*memdb.TableSchema) (*Store, error) {
	schema := &memdb.DBSchema{Tables: make(map[string]*memdb.TableSchema, len(tables))}
	for _, t := range tables {
		if _, dup := schema.Tables[t.Name]; dup {
			return nil, fmt.Errorf("memstore: duplicate table %q", t.Name)
		}
		schema.Tables[t.Name] = t
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("memstore: %w", err)
	}
	return &Store{db: db}, nil
}

// MustNew is New for fixed schemas known to be valid.
func MustNew(tables ...*memdb.TableSchema) *Store {
	s, err := New(tables...)
	if err != nil {
		panic(err)
	}
	return s
}

// InTx runs fn in a write transaction. Write transactions are serialized;
// writes become visible only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(txn *memdb.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Read runs fn against a read-only snapshot.
func (s *Store) Read(fn func(txn *memdb.Txn) error) error {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return fn(txn)
}

// IDIndex is the unique primary index every table needs.
func IDIndex(indexer memdb.Indexer) *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: "id", Unique: true, Indexer: indexer}
}
