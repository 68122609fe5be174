// Package leads provides the lead lifecycle bounded context module.
// This file defines the module that encapsulates its setup, consumers and
// route registration.
package leads

import (
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads/handler"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the lead state machine and compensation router on store
// and subscribes both consumers to bus.
func NewModule(store repository.Store, bus events.Bus, val *validator.Validator, cfg config.ChoreographyConfig, log *logger.Logger) (*Module, error) {
	svc := service.New(store, val, cfg.GetRequoteLimit(), log)
	if err := svc.Subscribe(bus); err != nil {
		return nil, err
	}

	return &Module{
		handler: handler.New(svc),
		service: svc,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the lead service for in-process callers.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/leads"))
	m.handler.RegisterInternalRoutes(ctx.Internal.Group("/leads"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
