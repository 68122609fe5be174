package scheduler

import (
	"context"
	"time"

	"leadflow_backend/internal/ledger"
	"leadflow_backend/platform/logger"
)

const (
	defaultLedgerCleanupInterval = time.Hour
	defaultLedgerRetention       = 30 * 24 * time.Hour
)

// LedgerCleanup periodically removes idempotency records older than the
// retention window. The window must exceed the longest redelivery delay.
type LedgerCleanup struct {
	store     ledger.Store
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewLedgerCleanup(store ledger.Store, log *logger.Logger, interval, retention time.Duration) *LedgerCleanup {
	if interval <= 0 {
		interval = defaultLedgerCleanupInterval
	}
	if retention <= 0 {
		retention = defaultLedgerRetention
	}
	if log == nil {
		log = logger.Nop()
	}

	return &LedgerCleanup{
		store:     store,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *LedgerCleanup) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *LedgerCleanup) cleanup(ctx context.Context) {
	cutoff := c.now().UTC().Add(-c.retention)
	deleted, err := c.store.Prune(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("ledger cleanup failed", "error", err)
		}
		return
	}
	if deleted > 0 {
		c.log.Info("ledger cleanup removed records", "deleted", deleted, "cutoff", cutoff)
	}
}
