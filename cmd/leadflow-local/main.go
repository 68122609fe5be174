// Command leadflow-local runs the four lead lifecycle services in one
// process on the in-memory bus and memory stores. State is lost on exit.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"leadflow_backend/internal/adapters"
	"leadflow_backend/internal/agents"
	agentclient "leadflow_backend/internal/agents/client"
	"leadflow_backend/internal/agents/ports"
	agentrepo "leadflow_backend/internal/agents/repository"
	"leadflow_backend/internal/bootstrap"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/owners"
	ownerrepo "leadflow_backend/internal/owners/repository"
	"leadflow_backend/internal/quotes"
	quoterepo "leadflow_backend/internal/quotes/repository"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

const serviceName = "leadflow-local"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if !cfg.InMemory() {
		panic(serviceName + " requires BUS_TRANSPORT=memory")
	}

	log := logger.New(cfg.Env).WithService(serviceName)
	log.Info("starting local stack", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, serviceName, cfg, log)
	if err != nil {
		panic("failed to initialize infrastructure: " + err.Error())
	}
	defer rt.Close()

	val := validator.New()

	leadMem := leadrepo.NewMemStore()
	rt.AddNode("leads", bootstrap.MemoryStores(leadMem), events.ConsumerLeadStateMachine, events.ConsumerCompensationRouter)
	leadsModule, err := leads.NewModule(leadrepo.NewMemRepository(leadMem), rt.Bus, val, cfg, log.WithService("leads"))
	if err != nil {
		panic("failed to initialize leads module: " + err.Error())
	}

	quoteMem := quoterepo.NewMemStore()
	rt.AddNode("quotes", bootstrap.MemoryStores(quoteMem), events.ConsumerQuoteLifecycle)
	leadLookup := adapters.NewLeadLookupAdapter(leadsModule.Service())
	quotesModule, err := quotes.NewModule(quoterepo.NewMemRepository(quoteMem), leadLookup, rt.Bus, val, log.WithService("quotes"))
	if err != nil {
		panic("failed to initialize quotes module: " + err.Error())
	}

	agentMem := agentrepo.NewMemStore()
	rt.AddNode("agents", bootstrap.MemoryStores(agentMem), events.ConsumerAgentNotifier)
	timers := adapters.NewTimerRetryScheduler(log)
	rt.OnClose(timers.Stop)
	agentsModule, err := agents.NewModule(agentrepo.NewMemRepository(agentMem), agentDirectory(cfg, log), timers, rt.Bus, cfg, log.WithService("agents"))
	if err != nil {
		panic("failed to initialize agents module: " + err.Error())
	}
	timers.SetRetrier(agentsModule.Service())

	ownerMem := ownerrepo.NewMemStore()
	rt.AddNode("owners", bootstrap.MemoryStores(ownerMem), events.ConsumerOwnerProjection)
	ownersModule, err := owners.NewModule(ownerrepo.NewMemRepository(ownerMem), rt.Bus, log.WithService("owners"))
	if err != nil {
		panic("failed to initialize owners module: " + err.Error())
	}

	if err := rt.Run(ctx, leadsModule, quotesModule, agentsModule, ownersModule); err != nil {
		log.Error("local stack stopped", "error", err)
		os.Exit(1)
	}
	log.Info("local stack stopped")
}

func agentDirectory(cfg config.AgentDirectoryConfig, log *logger.Logger) ports.AgentDirectory {
	if cfg.GetAgentDirectoryURL() != "" {
		return agentclient.New(cfg.GetAgentDirectoryURL(), cfg.GetAgentDirectoryRPS(), log)
	}
	log.Warn("AGENT_DIRECTORY_URL not configured; every lookup finds no agents")
	return agentclient.StaticDirectory{}
}
