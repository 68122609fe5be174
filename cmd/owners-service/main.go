package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"leadflow_backend/internal/bootstrap"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/owners"
	"leadflow_backend/internal/owners/repository"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

const serviceName = "owners-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
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
	rt.AddNode("owners", stores, events.ConsumerOwnerProjection)

	ownersModule, err := owners.NewModule(store, rt.Bus, log)
	if err != nil {
		log.Error("failed to initialize owners module", "error", err)
		panic("failed to initialize owners module: " + err.Error())
	}

	if err := rt.Run(ctx, ownersModule); err != nil {
		log.Error("service stopped", "error", err)
		os.Exit(1)
	}
	log.Info("service stopped")
}
