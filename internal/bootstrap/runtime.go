// Package bootstrap holds the composition helpers shared by the service
// binaries: database and Redis startup, bus selection, per-service outbox
// relay and dead-letter store, and a supervised run loop with graceful
// shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"leadflow_backend/internal/deadletter"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/http/router"
	"leadflow_backend/internal/outbox"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Runtime is the process-level infrastructure of one or more services.
type Runtime struct {
	Name   string
	Config *config.Config
	Log    *logger.Logger

	// Pool is nil in the in-memory mode.
	Pool  *pgxpool.Pool
	Redis *redis.Client
	Bus   events.Bus

	sinks   *deadLetterRouter
	nodes   []*Node
	workers []worker
	closers []func()
}

// Node is the outbox relay, dead-letter store and ledger cleanup of one
// service database.
type Node struct {
	Name        string
	DeadLetters *deadletter.Service
	Relay       *outbox.Relay
	cleanup     *scheduler.LedgerCleanup
}

type worker struct {
	name string
	run  func(ctx context.Context) error
}

// Open connects the infrastructure the configuration selects: Postgres and
// a Redis Streams bus, or nothing and the in-memory bus.
func Open(ctx context.Context, name string, cfg *config.Config, log *logger.Logger) (*Runtime, error) {
	rt := &Runtime{Name: name, Config: cfg, Log: log, sinks: newDeadLetterRouter()}

	if !cfg.InMemory() {
		pool, err := ConnectDatabase(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.closers = append(rt.closers, pool.Close)

		client, err := NewRedisClient(ctx, cfg, log)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Redis = client
		rt.closers = append(rt.closers, func() { _ = client.Close() })
	}

	var client redis.UniversalClient
	if rt.Redis != nil {
		client = rt.Redis
	}
	bus, err := NewBus(cfg, client, rt.sinks, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Bus = bus
	log.Info("event bus ready", "transport", cfg.GetBusTransport(), "partitions", cfg.GetBusPartitions())
	return rt, nil
}

// AddNode attaches the choreography stores of one service. Dead letters of
// the listed consumers go to this node; the first node also receives any
// consumer not listed.
func (r *Runtime) AddNode(name string, stores Stores, consumers ...string) *Node {
	nodeLog := r.Log.WithService(name)
	n := &Node{
		Name:        name,
		DeadLetters: deadletter.New(stores.DeadLetters, r.Bus, nodeLog),
		Relay:       outbox.NewRelay(stores.Outbox, r.Bus, nodeLog, r.Config.GetOutboxPollInterval(), r.Config.GetOutboxBatchSize()),
		cleanup:     scheduler.NewLedgerCleanup(stores.Ledger, nodeLog, r.Config.GetLedgerCleanupInterval(), r.Config.GetLedgerRetention()),
	}
	r.sinks.route(n.DeadLetters, consumers...)
	r.nodes = append(r.nodes, n)
	return n
}

// Go registers an extra worker supervised with the rest of the process.
func (r *Runtime) Go(name string, run func(ctx context.Context) error) {
	r.workers = append(r.workers, worker{name: name, run: run})
}

// OnClose registers fn to run from Close, in reverse registration order.
func (r *Runtime) OnClose(fn func()) {
	r.closers = append(r.closers, fn)
}

// Run serves modules and runs the bus, relays, cleanups and workers until
// ctx ends or one of them fails. In-flight deliveries and requests finish
// before Run returns.
func (r *Runtime) Run(ctx context.Context, modules ...apphttp.Module) error {
	app := &apphttp.App{
		Service:     r.Name,
		Logger:      r.Log,
		OperatorRPS: r.Config.GetOperatorRPS(),
		Modules:     modules,
	}
	if r.Pool != nil {
		app.Health = r.Pool
	}
	for _, n := range r.nodes {
		path := deadletter.DefaultPath
		if len(r.nodes) > 1 {
			path += "/" + n.Name
		}
		app.Modules = append(app.Modules, deadletter.NewModule(n.DeadLetters, path))
	}

	srv := &http.Server{
		Addr:              r.Config.GetHTTPAddr(),
		Handler:           router.New(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := r.Bus.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event bus: %w", err)
		}
		return nil
	})
	for _, n := range r.nodes {
		n := n
		g.Go(func() error {
			n.Relay.Run(gctx)
			return nil
		})
		g.Go(func() error {
			n.cleanup.Run(gctx)
			return nil
		})
	}
	for _, w := range r.workers {
		w := w
		g.Go(func() error {
			if err := w.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", w.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		r.Log.Info("server listening", "addr", srv.Addr, "service", r.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.Log.Info("shutdown signal received, gracefully shutting down", "service", r.Name)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases the connections opened by Open.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}
