package service

import (
	"context"

	"leadflow_backend/internal/events"
	platformevents "leadflow_backend/platform/events"
)

// LeadEventsHandler routes lead events into the notifier.
func (s *Service) LeadEventsHandler() events.Handler {
	r := platformevents.NewRouter()
	r.HandleFunc(events.TypeLeadCreated, func(ctx context.Context, env events.Envelope) error {
		_, err := s.HandleLeadCreated(ctx, env)
		return err
	})
	return r
}

// Subscribe registers the notifier consumer on bus.
func (s *Service) Subscribe(bus events.Bus) error {
	return bus.Subscribe(events.TopicLeads, events.ConsumerAgentNotifier, s.LeadEventsHandler())
}
