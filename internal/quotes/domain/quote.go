// Package domain provides core business rules for the quotes bounded context.
package domain

import (
	"fmt"
	"strings"
	"time"

	"leadflow_backend/platform/apperr"
)

type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionAccepted Decision = "ACCEPTED"
	DecisionRejected Decision = "REJECTED"
)

// ParseDecision accepts the two terminal decisions, case-insensitively.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DecisionAccepted, DecisionRejected:
		return d, nil
	}
	return "", apperr.Validation(fmt.Sprintf("decision must be ACCEPTED or REJECTED, got %q", s))
}

// Quote is an agent's offer against a lead. LeadID is a reference; the lead
// is owned by the lead service.
type Quote struct {
	ID        string
	LeadID    int64
	AgentID   string
	Amount    float64
	Decision  Decision
	CreatedAt time.Time
	DecidedAt *time.Time
}

// Decide sets the terminal decision. A quote is decided once; a second
// decision is a business error, not an idempotent replay.
func (q *Quote) Decide(d Decision, now time.Time) error {
	if d != DecisionAccepted && d != DecisionRejected {
		return apperr.Validation(fmt.Sprintf("invalid decision %q", d))
	}
	if q.Decision != DecisionPending {
		return apperr.AlreadyDecided(fmt.Sprintf("quote %s is already %s", q.ID, q.Decision)).
			WithDetails(map[string]string{"decision": string(q.Decision)})
	}
	q.Decision = d
	q.DecidedAt = &now
	return nil
}

// QuoteRequest marks a lead as open for quoting. It is recorded once per
// lead when its LeadCreated event is first applied.
type QuoteRequest struct {
	ID          string
	LeadID      int64
	ZipCode     string
	RequestedAt time.Time
}
