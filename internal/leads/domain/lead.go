// Package domain provides core business rules for the leads bounded context.
package domain

import (
	"fmt"
	"time"

	"leadflow_backend/platform/apperr"
)

// Status is the canonical lead status. Only the lead service writes it.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusQuoteRequested Status = "QUOTE_REQUESTED"
	StatusQuoted         Status = "QUOTED"
	StatusAccepted       Status = "ACCEPTED"
	StatusRejected       Status = "REJECTED"
	StatusClosed         Status = "CLOSED"
)

// Compensation reasons carried on LeadStatusChanged.
const (
	ReasonRequoteRequested    = "requote_requested"
	ReasonRequoteLimitReached = "requote_limit_reached"
)

// transitions lists the statuses reachable from each status. ACCEPTED and
// CLOSED are terminal.
var transitions = map[Status][]Status{
	StatusCreated:        {StatusQuoteRequested, StatusQuoted},
	StatusQuoteRequested: {StatusQuoted},
	StatusQuoted:         {StatusAccepted, StatusRejected},
	StatusRejected:       {StatusQuoteRequested, StatusClosed},
}

// ParseStatus returns the status named s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusCreated, StatusQuoteRequested, StatusQuoted, StatusAccepted, StatusRejected, StatusClosed:
		return st, nil
	}
	return "", apperr.Validation(fmt.Sprintf("unknown lead status %q", s))
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Quotable reports whether a new quote may be issued against a lead in s.
func Quotable(s Status) bool {
	return s == StatusQuoteRequested
}

// Lead is the authoritative lead aggregate.
type Lead struct {
	ID            int64
	PropertyID    string
	OwnerID       string
	ZipCode       string
	Status        Status
	RequoteCount  int
	PendingQuotes int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Change is one applied status transition.
type Change struct {
	LeadID int64
	From   Status
	To     Status
}

// NewLead builds a lead in CREATED. The id is assigned by the repository.
func NewLead(propertyID, ownerID, zipCode string, now time.Time) Lead {
	return Lead{
		PropertyID: propertyID,
		OwnerID:    ownerID,
		ZipCode:    zipCode,
		Status:     StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the lead to to, or fails with an invalid transition
// error that names both statuses.
func (l *Lead) Transition(to Status, now time.Time) (Change, error) {
	if !CanTransition(l.Status, to) {
		return Change{}, apperr.InvalidTransition(
			fmt.Sprintf("lead %d cannot move from %s to %s", l.ID, l.Status, to),
		).WithDetails(map[string]string{"from": string(l.Status), "to": string(to)})
	}
	change := Change{LeadID: l.ID, From: l.Status, To: to}
	l.Status = to
	l.UpdatedAt = now
	return change, nil
}

// QuoteIssued records a new pending quote and moves the lead to QUOTED.
func (l *Lead) QuoteIssued(now time.Time) (Change, error) {
	change, err := l.Transition(StatusQuoted, now)
	if err != nil {
		return Change{}, err
	}
	l.PendingQuotes++
	return change, nil
}

// QuoteDecided records the decision on the pending quote.
func (l *Lead) QuoteDecided(accepted bool, now time.Time) (Change, error) {
	to := StatusRejected
	if accepted {
		to = StatusAccepted
	}
	change, err := l.Transition(to, now)
	if err != nil {
		return Change{}, err
	}
	if l.PendingQuotes > 0 {
		l.PendingQuotes--
	}
	return change, nil
}

// Compensate decides what follows a rejection. Below limit the lead goes
// back to QUOTE_REQUESTED and the re-quote counter is bumped; at or above
// limit the lead is closed. It returns the applied change and its reason.
func (l *Lead) Compensate(limit int, now time.Time) (Change, string, error) {
	if l.Status != StatusRejected {
		return Change{}, "", apperr.InvalidTransition(fmt.Sprintf("lead %d is %s, not REJECTED", l.ID, l.Status))
	}
	if l.RequoteCount < limit {
		change, err := l.Transition(StatusQuoteRequested, now)
		if err != nil {
			return Change{}, "", err
		}
		l.RequoteCount++
		return change, ReasonRequoteRequested, nil
	}
	change, err := l.Transition(StatusClosed, now)
	if err != nil {
		return Change{}, "", err
	}
	return change, ReasonRequoteLimitReached, nil
}

// Deletable fails with a conflict while quotes against the lead are pending.
func (l *Lead) Deletable() error {
	if l.PendingQuotes > 0 {
		return apperr.Conflict(fmt.Sprintf("lead %d has %d pending quote(s)", l.ID, l.PendingQuotes))
	}
	return nil
}
