package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"leadflow_backend/internal/adapters"
	"leadflow_backend/internal/agents"
	"leadflow_backend/internal/agents/client"
	"leadflow_backend/internal/agents/ports"
	"leadflow_backend/internal/agents/repository"
	"leadflow_backend/internal/bootstrap"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

const serviceName = "agents-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if cfg.GetAgentDirectoryURL() == "" {
		panic("AGENT_DIRECTORY_URL is required for " + serviceName)
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
	rt.AddNode("agents", stores, events.ConsumerAgentNotifier)

	retries, startRetries := initRetryScheduler(rt, cfg, log)

	directory := client.New(cfg.GetAgentDirectoryURL(), cfg.GetAgentDirectoryRPS(), log)
	agentsModule, err := agents.NewModule(store, directory, retries, rt.Bus, cfg, log)
	if err != nil {
		log.Error("failed to initialize agents module", "error", err)
		panic("failed to initialize agents module: " + err.Error())
	}
	startRetries(agentsModule.Service())

	if err := rt.Run(ctx, agentsModule); err != nil {
		log.Error("service stopped", "error", err)
		os.Exit(1)
	}
	log.Info("service stopped")
}

// initRetryScheduler returns the delayed-retry scheduler and a function
// that starts executing retries once the retrier exists. With Redis the
// retries are asynq tasks; without it they are in-process timers.
func initRetryScheduler(rt *bootstrap.Runtime, cfg *config.Config, log *logger.Logger) (ports.RetryScheduler, func(scheduler.AgentLookupRetrier)) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; agent lookup retries run on in-process timers")
		timers := adapters.NewTimerRetryScheduler(log)
		rt.OnClose(timers.Stop)
		return timers, timers.SetRetrier
	}

	retryClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize retry scheduler client", "error", err)
		panic("failed to initialize retry scheduler client: " + err.Error())
	}
	rt.OnClose(func() { _ = retryClient.Close() })

	return retryClient, func(retrier scheduler.AgentLookupRetrier) {
		w, err := scheduler.NewWorker(cfg, retrier, log)
		if err != nil {
			log.Error("failed to initialize retry worker", "error", err)
			panic("failed to initialize retry worker: " + err.Error())
		}
		rt.Go("agent lookup retry worker", func(ctx context.Context) error {
			w.Run(ctx)
			return nil
		})
	}
}
