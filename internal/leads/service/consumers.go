package service

import (
	"context"

	"leadflow_backend/internal/events"
	platformevents "leadflow_backend/platform/events"
)

// StateMachineHandler routes quote lifecycle events into the state machine.
func (s *Service) StateMachineHandler() events.Handler {
	r := platformevents.NewRouter()
	r.HandleFunc(events.TypeQuoteRequested, func(ctx context.Context, env events.Envelope) error {
		_, err := s.ApplyQuoteRequested(ctx, env)
		return err
	})
	r.HandleFunc(events.TypeQuoteCreated, func(ctx context.Context, env events.Envelope) error {
		_, err := s.ApplyQuoteCreated(ctx, env)
		return err
	})
	r.HandleFunc(events.TypeQuoteAccepted, func(ctx context.Context, env events.Envelope) error {
		_, err := s.ApplyQuoteAccepted(ctx, env)
		return err
	})
	r.HandleFunc(events.TypeQuoteRejected, func(ctx context.Context, env events.Envelope) error {
		_, err := s.ApplyQuoteRejected(ctx, env)
		return err
	})
	return r
}

// CompensationHandler routes lead status changes into the compensation
// router.
func (s *Service) CompensationHandler() events.Handler {
	r := platformevents.NewRouter()
	r.HandleFunc(events.TypeLeadStatusChanged, func(ctx context.Context, env events.Envelope) error {
		_, _, err := s.Compensate(ctx, env)
		return err
	})
	return r
}

// Subscribe registers both lead service consumers on bus.
func (s *Service) Subscribe(bus events.Bus) error {
	if err := bus.Subscribe(events.TopicQuotes, events.ConsumerLeadStateMachine, s.StateMachineHandler()); err != nil {
		return err
	}
	return bus.Subscribe(events.TopicLeads, events.ConsumerCompensationRouter, s.CompensationHandler())
}
