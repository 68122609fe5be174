package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestPermanentKinds(t *testing.T) {
	cases := []struct {
		err  *Error
		want bool
	}{
		{Validation("zipCode is required"), true},
		{InvalidTransition("bad transition"), true},
		{AlreadyDecided("decided"), true},
		{UnknownLead("missing"), true},
		{Conflict("pending quotes"), true},
		{NotFound("lead not found"), false},
		{Transient("lookup timed out", errors.New("deadline")), false},
		{Internal("boom"), false},
	}

	for _, tc := range cases {
		if got := tc.err.Permanent(); got != tc.want {
			t.Errorf("%s: Permanent() = %v, want %v", tc.err.Kind, got, tc.want)
		}
	}
}

func TestGetKindUnwrapsChain(t *testing.T) {
	err := fmt.Errorf("apply event: %w", InvalidTransition("QUOTED -> QUOTED"))
	if !Is(err, KindInvalidTransition) {
		t.Fatalf("expected wrapped error to report KindInvalidTransition, got %s", GetKind(err))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatal("expected plain error to report KindUnknown")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	if got := AlreadyDecided("x").HTTPStatus(); got != http.StatusConflict {
		t.Fatalf("expected 409, got %d", got)
	}
	if got := UnknownLead("x").HTTPStatus(); got != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", got)
	}
	if got := Transient("x", nil).HTTPStatus(); got != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", got)
	}
}
