package events

import (
	platformevents "leadflow_backend/platform/events"
)

// InMemoryBus is a type alias to the platform InMemoryBus
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus creates a new in-memory event bus.
// This is a convenience re-export from platform/events.
func NewInMemoryBus(opts platformevents.Options) *InMemoryBus {
	return platformevents.NewInMemoryBus(opts)
}

// Decode unmarshals the payload of env into T.
func Decode[T any](env Envelope) (T, error) {
	return platformevents.Decode[T](env)
}
