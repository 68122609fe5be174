package service

import (
	"leadflow_backend/internal/events"
	platformevents "leadflow_backend/platform/events"
)

// LeadEventsHandler routes lead topic events the quote lifecycle reacts to.
func (s *Service) LeadEventsHandler() events.Handler {
	r := platformevents.NewRouter()
	r.HandleFunc(events.TypeLeadCreated, s.HandleLeadCreated)
	return r
}

// Subscribe registers the quote lifecycle consumer on bus.
func (s *Service) Subscribe(bus events.Bus) error {
	return bus.Subscribe(events.TopicLeads, events.ConsumerQuoteLifecycle, s.LeadEventsHandler())
}
