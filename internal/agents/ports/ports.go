// Package ports declares what the agent notifier needs from outside.
package ports

import (
	"context"
	"time"

	"leadflow_backend/internal/agents/domain"
)

// AgentDirectory answers "get eligible agents by zip code". An empty result
// with a nil error means no agent covers the zip code.
type AgentDirectory interface {
	EligibleAgents(ctx context.Context, zipCode string) ([]domain.Agent, error)
}

// RetryScheduler delays a lookup attempt. Scheduling the same (lead,
// attempt) twice must be harmless.
type RetryScheduler interface {
	ScheduleAgentLookup(ctx context.Context, leadID int64, attempt int, delay time.Duration) error
}
