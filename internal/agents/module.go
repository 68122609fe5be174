// Package agents provides the agent assignment bounded context module.
package agents

import (
	"leadflow_backend/internal/agents/handler"
	"leadflow_backend/internal/agents/ports"
	"leadflow_backend/internal/agents/repository"
	"leadflow_backend/internal/agents/service"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// Module is the agents bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the notifier on store and subscribes it to bus. The
// returned service is also the retrier the scheduler worker calls.
func NewModule(store repository.Store, directory ports.AgentDirectory, retries ports.RetryScheduler, bus events.Bus, cfg config.ChoreographyConfig, log *logger.Logger) (*Module, error) {
	svc := service.New(store, directory, retries, service.Settings{
		LookupTimeout: cfg.GetAgentLookupTimeout(),
		MaxAttempts:   cfg.GetAgentLookupAttempts(),
		Backoff:       cfg.GetAgentLookupBackoff(),
	}, log)
	if err := svc.Subscribe(bus); err != nil {
		return nil, err
	}

	return &Module{
		handler: handler.New(svc),
		service: svc,
	}, nil
}

func (m *Module) Name() string {
	return "agents"
}

func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/assignments"))
}

var _ apphttp.Module = (*Module)(nil)
