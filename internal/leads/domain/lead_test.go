package domain

import (
	"testing"
	"time"

	"leadflow_backend/platform/apperr"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusQuoteRequested, true},
		{StatusCreated, StatusQuoted, true},
		{StatusQuoteRequested, StatusQuoted, true},
		{StatusQuoted, StatusAccepted, true},
		{StatusQuoted, StatusRejected, true},
		{StatusRejected, StatusQuoteRequested, true},
		{StatusRejected, StatusClosed, true},
		{StatusCreated, StatusAccepted, false},
		{StatusQuoteRequested, StatusAccepted, false},
		{StatusAccepted, StatusClosed, false},
		{StatusClosed, StatusQuoteRequested, false},
		{StatusQuoted, StatusQuoted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusAccepted, StatusClosed} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusCreated, StatusQuoteRequested, StatusQuoted, StatusRejected} {
		if IsTerminal(s) {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestTransitionRejectsIneligibleState(t *testing.T) {
	l := Lead{ID: 7, Status: StatusCreated}
	_, err := l.Transition(StatusAccepted, now)
	if !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if l.Status != StatusCreated {
		t.Fatalf("status must not change on failure, got %s", l.Status)
	}
}

func TestQuoteLifecycleTracksPendingQuotes(t *testing.T) {
	l := NewLead("P-1", "O-1", "70000", now)
	if _, err := l.Transition(StatusQuoteRequested, now); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := l.QuoteIssued(now); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if l.PendingQuotes != 1 || l.Deletable() == nil {
		t.Fatalf("expected one pending quote blocking delete, got %d", l.PendingQuotes)
	}

	change, err := l.QuoteDecided(true, now)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if change.From != StatusQuoted || change.To != StatusAccepted {
		t.Fatalf("unexpected change %+v", change)
	}
	if l.PendingQuotes != 0 || l.Deletable() != nil {
		t.Fatalf("expected no pending quotes after decision, got %d", l.PendingQuotes)
	}
}

func TestCompensateAtLimitBoundary(t *testing.T) {
	cases := []struct {
		name       string
		limit      int
		count      int
		wantStatus Status
		wantReason string
		wantCount  int
	}{
		{"below limit requotes", 1, 0, StatusQuoteRequested, ReasonRequoteRequested, 1},
		{"at limit closes", 1, 1, StatusClosed, ReasonRequoteLimitReached, 1},
		{"above limit closes", 1, 2, StatusClosed, ReasonRequoteLimitReached, 2},
		{"zero limit closes", 0, 0, StatusClosed, ReasonRequoteLimitReached, 0},
		{"higher limit requotes", 3, 2, StatusQuoteRequested, ReasonRequoteRequested, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := Lead{ID: 1, Status: StatusRejected, RequoteCount: tc.count}
			change, reason, err := l.Compensate(tc.limit, now)
			if err != nil {
				t.Fatalf("compensate: %v", err)
			}
			if change.To != tc.wantStatus || l.Status != tc.wantStatus {
				t.Fatalf("expected %s, got %s", tc.wantStatus, l.Status)
			}
			if reason != tc.wantReason {
				t.Fatalf("expected reason %s, got %s", tc.wantReason, reason)
			}
			if l.RequoteCount != tc.wantCount {
				t.Fatalf("expected counter %d, got %d", tc.wantCount, l.RequoteCount)
			}
		})
	}
}

func TestCompensateRequiresRejectedLead(t *testing.T) {
	l := Lead{ID: 1, Status: StatusQuoted}
	if _, _, err := l.Compensate(1, now); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("QUOTED"); err != nil || s != StatusQuoted {
		t.Fatalf("expected QUOTED, got %s (%v)", s, err)
	}
	if _, err := ParseStatus("quoted"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
