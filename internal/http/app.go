// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"leadflow_backend/platform/logger"
)

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized service dependencies the router needs.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Service is the deployable service name reported by /api/health.
	Service string
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness checks (e.g. DB ping). Nil means always ready.
	Health HealthChecker
	// OperatorRPS limits operator requests per client IP. Zero disables it.
	OperatorRPS float64
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
