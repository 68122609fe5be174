package outbox

import (
	"context"
	"time"

	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 100
)

// Relay publishes pending outbox records to the bus.
type Relay struct {
	store    Store
	bus      events.Publisher
	log      *logger.Logger
	interval time.Duration
	batch    int
}

func NewRelay(store Store, bus events.Publisher, log *logger.Logger, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if batch < 1 {
		batch = defaultBatchSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Relay{store: store, bus: bus, log: log, interval: interval, batch: batch}
}

func (r *Relay) Run(ctx context.Context) {
	if r == nil || r.store == nil || r.bus == nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("outbox relay flush failed", "error", err)
		}
	}
}

// Flush publishes pending records until the outbox is empty or a publish
// fails. It returns how many records were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		var publishErr error
		n, err := r.store.Drain(ctx, r.batch, func(rec Record) error {
			if err := r.bus.Publish(ctx, rec.Topic, rec.Envelope); err != nil {
				publishErr = err
				return err
			}
			return nil
		})
		total += n
		if err != nil {
			return total, err
		}
		if publishErr != nil {
			return total, publishErr
		}
		if n < r.batch {
			return total, nil
		}
	}
}
