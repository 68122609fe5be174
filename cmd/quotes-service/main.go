package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"leadflow_backend/internal/adapters"
	"leadflow_backend/internal/bootstrap"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/quotes"
	"leadflow_backend/internal/quotes/repository"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

const serviceName = "quotes-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if cfg.GetLeadServiceURL() == "" {
		panic("LEAD_SERVICE_URL is required for " + serviceName)
	}

	log := logger.New(cfg.Env).WithService(serviceName)
	log.Info("starting service", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, serviceName, cfg, log)
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		panic("failed to initialize infrastructure: " + err.Error())
	}
	defer rt.Close()

	var store repository.Store
	var stores bootstrap.Stores
	if rt.Pool != nil {
		store = repository.New(rt.Pool)
		stores = bootstrap.PostgresStores(rt.Pool)
	} else {
		mem := repository.NewMemStore()
		store = repository.NewMemRepository(mem)
		stores = bootstrap.MemoryStores(mem)
	}
	rt.AddNode("quotes", stores, events.ConsumerQuoteLifecycle)

	// The one synchronous dependency: lead lookups against the lead service.
	leadLookup := adapters.NewLeadLookupClient(cfg.GetLeadServiceURL(), cfg.GetLeadLookupTimeout(), log)

	quotesModule, err := quotes.NewModule(store, leadLookup, rt.Bus, validator.New(), log)
	if err != nil {
		log.Error("failed to initialize quotes module", "error", err)
		panic("failed to initialize quotes module: " + err.Error())
	}

	if err := rt.Run(ctx, quotesModule); err != nil {
		log.Error("service stopped", "error", err)
		os.Exit(1)
	}
	log.Info("service stopped")
}
