package bootstrap

import (
	"leadflow_backend/internal/deadletter"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/platform/memstore"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores are the choreography tables every service database carries next to
// its domain tables.
type Stores struct {
	Outbox      outbox.Store
	Ledger      ledger.Store
	DeadLetters deadletter.Repository
}

func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Outbox:      outbox.New(pool),
		Ledger:      ledger.New(pool),
		DeadLetters: deadletter.NewPGRepository(pool),
	}
}

// MemoryStores binds the choreography tables of a service memory database.
func MemoryStores(mem *memstore.Store) Stores {
	return Stores{
		Outbox:      outbox.NewMemRepository(mem),
		Ledger:      ledger.NewMemRepository(mem),
		DeadLetters: deadletter.NewMemRepository(mem),
	}
}
