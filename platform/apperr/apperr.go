// Package apperr provides standardized domain error types for the application.
// Domain services return these typed errors; the HTTP layer maps them to status
// codes and the event bus maps them to a delivery policy.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found (possibly not yet).
	KindNotFound
	// KindValidation indicates malformed input data.
	KindValidation
	// KindConflict indicates a conflict with existing state.
	KindConflict
	// KindInvalidTransition indicates a state transition that violates
	// causality, e.g. a novel event aimed at a lead in the wrong state.
	KindInvalidTransition
	// KindAlreadyDecided indicates a second decision on a decided quote.
	KindAlreadyDecided
	// KindUnknownLead indicates a quote was requested for a lead that has not
	// reached a quotable state.
	KindUnknownLead
	// KindTransient indicates a timeout or dependency failure worth retrying.
	KindTransient
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindNotFound:          "not_found",
	KindValidation:        "validation",
	KindConflict:          "conflict",
	KindInvalidTransition: "invalid_transition",
	KindAlreadyDecided:    "already_decided",
	KindUnknownLead:       "unknown_lead",
	KindTransient:         "transient_dependency",
	KindInternal:          "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string // Operation that failed (optional)
	Err     error  // Underlying error (optional)
	Details any    // Additional details for response (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindAlreadyDecided, KindInvalidTransition:
		return http.StatusConflict
	case KindUnknownLead:
		return http.StatusUnprocessableEntity
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Permanent reports whether redelivering the event that produced this error
// can never succeed. The event bus dead-letters permanent failures at once.
func (e *Error) Permanent() bool {
	switch e.Kind {
	case KindValidation, KindConflict, KindInvalidTransition, KindAlreadyDecided, KindUnknownLead:
		return true
	default:
		return false
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp sets the operation on the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails sets additional details on the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// InvalidTransition creates a causality violation error.
func InvalidTransition(message string) *Error {
	return New(KindInvalidTransition, message)
}

// AlreadyDecided creates a business conflict error for re-decided quotes.
func AlreadyDecided(message string) *Error {
	return New(KindAlreadyDecided, message)
}

// UnknownLead creates an unknown lead error.
func UnknownLead(message string) *Error {
	return New(KindUnknownLead, message)
}

// Transient creates a retryable dependency error.
func Transient(message string, err error) *Error {
	return Wrap(KindTransient, message, err)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is present.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
