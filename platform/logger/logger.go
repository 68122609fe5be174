// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// EventIDKey is the context key for the envelope being handled
	EventIDKey contextKey = "event_id"
	// ConsumerKey is the context key for the consumer handling an envelope
	ConsumerKey contextKey = "consumer"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Tests pass io.Discard.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewWithWriter("production", io.Discard)
}

// WithContext returns a logger with context values extracted.
// Supports request_id, event_id and consumer from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l
	for _, key := range []contextKey{RequestIDKey, EventIDKey, ConsumerKey} {
		if value, ok := ctx.Value(key).(string); ok && value != "" {
			newLogger = &Logger{Logger: newLogger.With(slog.String(string(key), value))}
		}
	}

	return newLogger
}

// WithService returns a logger tagged with the deployable service name.
func (l *Logger) WithService(name string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("service", name)),
	}
}

// ContextWithEvent stores the event id and consumer for WithContext.
func ContextWithEvent(ctx context.Context, consumer, eventID string) context.Context {
	ctx = context.WithValue(ctx, ConsumerKey, consumer)
	return context.WithValue(ctx, EventIDKey, eventID)
}

// EventApplied logs a side effect committed together with its ledger record.
func (l *Logger) EventApplied(consumer, eventType, eventID, aggregateID string) {
	l.Info("event_applied",
		slog.String("consumer", consumer),
		slog.String("event_type", eventType),
		slog.String("event_id", eventID),
		slog.String("aggregate_id", aggregateID),
	)
}

// DuplicateEvent logs a redelivered envelope the ledger already holds.
func (l *Logger) DuplicateEvent(consumer, eventType, eventID string) {
	l.Debug("duplicate_event_noop",
		slog.String("consumer", consumer),
		slog.String("event_type", eventType),
		slog.String("event_id", eventID),
	)
}

// DeadLettered logs an envelope diverted to the dead-letter path.
func (l *Logger) DeadLettered(topic, consumer, eventID string, attempts int, err error) {
	l.Error("event_dead_lettered",
		slog.String("topic", topic),
		slog.String("consumer", consumer),
		slog.String("event_id", eventID),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs a request rejected by the per-IP limiter.
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
