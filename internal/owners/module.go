// Package owners provides the owner projection bounded context module.
package owners

import (
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/owners/handler"
	"leadflow_backend/internal/owners/repository"
	"leadflow_backend/internal/owners/service"
	"leadflow_backend/platform/logger"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the projection on store and subscribes it to bus.
func NewModule(store repository.Store, bus events.Bus, log *logger.Logger) (*Module, error) {
	svc := service.New(store, log)
	if err := svc.Subscribe(bus); err != nil {
		return nil, err
	}
	return &Module{handler: handler.New(svc), service: svc}, nil
}

func (m *Module) Name() string {
	return "owners"
}

func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/owners"))
}

var _ apphttp.Module = (*Module)(nil)
