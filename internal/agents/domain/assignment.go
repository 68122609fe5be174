// Package domain provides core business rules for agent assignment.
package domain

import (
	"fmt"
	"time"

	"leadflow_backend/platform/apperr"
)

type State string

const (
	StatePending  State = "PENDING"
	StateAssigned State = "ASSIGNED"
	StateFailed   State = "FAILED"
)

// Agent is an eligible agent as returned by the directory. The directory
// owns ranking, so the first agent returned is the one assigned.
type Agent struct {
	ID   string `json:"agentId"`
	Name string `json:"name"`
}

// Assignment is the agent projection of one lead.
type Assignment struct {
	LeadID    int64
	ZipCode   string
	State     State
	AgentID   *string
	Attempts  int
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewAssignment(leadID int64, zipCode string, now time.Time) Assignment {
	return Assignment{LeadID: leadID, ZipCode: zipCode, State: StatePending, CreatedAt: now, UpdatedAt: now}
}

// Attempt records the start of lookup attempt n. Only the next attempt of a
// pending assignment may start; anything else has already been handled.
func (a *Assignment) Attempt(n int, now time.Time) error {
	if a.State != StatePending || n != a.Attempts+1 {
		return apperr.Conflict(fmt.Sprintf("lead %d: attempt %d already handled (state %s, attempts %d)", a.LeadID, n, a.State, a.Attempts))
	}
	a.Attempts = n
	a.UpdatedAt = now
	return nil
}

func (a *Assignment) Assign(agentID string, now time.Time) {
	a.State = StateAssigned
	a.AgentID = &agentID
	a.LastError = nil
	a.UpdatedAt = now
}

// Miss records a failed attempt that will be retried.
func (a *Assignment) Miss(reason string, now time.Time) {
	a.LastError = &reason
	a.UpdatedAt = now
}

func (a *Assignment) Fail(reason string, now time.Time) {
	a.State = StateFailed
	a.LastError = &reason
	a.UpdatedAt = now
}

// RetryDelay is the exponential delay before attempt n+1 after n failed
// attempts: base, 2*base, 4*base, ...
func RetryDelay(base time.Duration, failedAttempts int) time.Duration {
	if failedAttempts < 1 {
		failedAttempts = 1
	}
	return base << (failedAttempts - 1)
}
