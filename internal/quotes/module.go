// Package quotes provides the quote lifecycle domain module.
package quotes

import (
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/quotes/handler"
	"leadflow_backend/internal/quotes/ports"
	"leadflow_backend/internal/quotes/repository"
	"leadflow_backend/internal/quotes/service"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

// Module represents the quotes domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates a new quotes module with all dependencies wired and its
// consumer subscribed to bus.
func NewModule(store repository.Store, leads ports.LeadLookup, bus events.Bus, val *validator.Validator, log *logger.Logger) (*Module, error) {
	svc := service.New(store, leads, val, log)
	if err := svc.Subscribe(bus); err != nil {
		return nil, err
	}

	return &Module{
		handler: handler.New(svc),
		service: svc,
	}, nil
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "quotes"
}

// Service returns the service layer for external use
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/quotes"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
