// Package events holds the canonical, versioned event schemas every service
// of the lead lifecycle produces and consumes. There is exactly one
// definition per logical event; consumers never redefine a payload.
// Infrastructure (Envelope, Bus, Handler) is in platform/events.
package events

import (
	"strconv"

	"leadflow_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Envelope    = events.Envelope
	Bus         = events.Bus
	Publisher   = events.Publisher
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	DeadLetter  = events.DeadLetter

	DeadLetterSink = events.DeadLetterSink
)

// Re-export platform functions
var (
	NewBaseEvent = events.NewBaseEvent
	NewEnvelope  = events.NewEnvelope
)

// Topics. Every event is keyed by its lead id, so per-lead order holds within
// a topic.
const (
	// TopicLeads carries events produced by the lead service.
	TopicLeads = "leadflow.leads"
	// TopicQuotes carries events produced by the quote service.
	TopicQuotes = "leadflow.quotes"
	// TopicAgents carries diagnostics produced by the agent service.
	TopicAgents = "leadflow.agents"
	// TopicDeadLetter carries dead-lettered envelopes for monitoring.
	TopicDeadLetter = "leadflow.deadletter"
)

// Consumer names. Each one owns its own idempotency ledger partition.
const (
	ConsumerLeadStateMachine   = "lead-state-machine"
	ConsumerCompensationRouter = "compensation-router"
	ConsumerQuoteLifecycle     = "quote-lifecycle"
	ConsumerAgentNotifier      = "agent-assignment-notifier"
	ConsumerOwnerProjection    = "owner-projection"
)

// Event type names as carried in Envelope.Type.
const (
	TypeLeadCreated           = "LeadCreatedEvent"
	TypeLeadStatusChanged     = "LeadStatusChangedEvent"
	TypeQuoteRequested        = "QuoteRequestedEvent"
	TypeQuoteCreated          = "QuoteCreatedEvent"
	TypeQuoteAccepted         = "QuoteAcceptedEvent"
	TypeQuoteRejected         = "QuoteRejectedEvent"
	TypeAgentAssignmentFailed = "AgentAssignmentFailed"
	TypeDeadLettered          = "DeadLettered"
)

// LeadKey formats a lead id as an aggregate key.
func LeadKey(leadID int64) string {
	return strconv.FormatInt(leadID, 10)
}

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadCreated is published when a new lead is created.
type LeadCreated struct {
	BaseEvent
	LeadID     int64  `json:"leadId"`
	PropertyID string `json:"propertyId"`
	OwnerID    string `json:"ownerId"`
	ZipCode    string `json:"zipCode"`
}

func (e LeadCreated) EventName() string    { return TypeLeadCreated }
func (e LeadCreated) AggregateKey() string { return LeadKey(e.LeadID) }

// LeadStatusChanged is published on every lead status transition.
// AgentID and Reason are null when not applicable.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    int64   `json:"leadId"`
	OldStatus string  `json:"oldStatus"`
	NewStatus string  `json:"newStatus"`
	AgentID   *string `json:"agentId"`
	Reason    *string `json:"reason"`
}

func (e LeadStatusChanged) EventName() string    { return TypeLeadStatusChanged }
func (e LeadStatusChanged) AggregateKey() string { return LeadKey(e.LeadID) }

// =============================================================================
// Quote Domain Events
// =============================================================================

// QuoteRequested is published by the quote service once it accepts quotes
// for a newly created lead.
type QuoteRequested struct {
	BaseEvent
	QuoteRequestID string `json:"quoteRequestId"`
	LeadID         int64  `json:"leadId"`
}

func (e QuoteRequested) EventName() string    { return TypeQuoteRequested }
func (e QuoteRequested) AggregateKey() string { return LeadKey(e.LeadID) }

// QuoteCreated is published when an agent issues a quote against a lead.
type QuoteCreated struct {
	BaseEvent
	QuoteID string  `json:"quoteId"`
	LeadID  int64   `json:"leadId"`
	AgentID string  `json:"agentId"`
	Amount  float64 `json:"amount"`
}

func (e QuoteCreated) EventName() string    { return TypeQuoteCreated }
func (e QuoteCreated) AggregateKey() string { return LeadKey(e.LeadID) }

// QuoteAccepted is published when the agent accepts a pending quote.
type QuoteAccepted struct {
	BaseEvent
	QuoteID string `json:"quoteId"`
	LeadID  int64  `json:"leadId"`
	AgentID string `json:"agentId"`
}

func (e QuoteAccepted) EventName() string    { return TypeQuoteAccepted }
func (e QuoteAccepted) AggregateKey() string { return LeadKey(e.LeadID) }

// QuoteRejected is published when the agent rejects a pending quote.
type QuoteRejected struct {
	BaseEvent
	QuoteID string `json:"quoteId"`
	LeadID  int64  `json:"leadId"`
	AgentID string `json:"agentId"`
}

func (e QuoteRejected) EventName() string    { return TypeQuoteRejected }
func (e QuoteRejected) AggregateKey() string { return LeadKey(e.LeadID) }

// =============================================================================
// Diagnostic Events
// =============================================================================

// AgentAssignmentFailed is published when no eligible agent could be found
// for a lead within the retry budget.
type AgentAssignmentFailed struct {
	BaseEvent
	LeadID   int64  `json:"leadId"`
	ZipCode  string `json:"zipCode"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

func (e AgentAssignmentFailed) EventName() string    { return TypeAgentAssignmentFailed }
func (e AgentAssignmentFailed) AggregateKey() string { return LeadKey(e.LeadID) }

// DeadLettered is published when a consumer gives up on an envelope. The
// original envelope is embedded unchanged for replay.
type DeadLettered struct {
	BaseEvent
	DeadLetterID string   `json:"deadLetterId"`
	Topic        string   `json:"topic"`
	Consumer     string   `json:"consumer"`
	Reason       string   `json:"reason"`
	Attempts     int      `json:"attempts"`
	Original     Envelope `json:"original"`
}

func (e DeadLettered) EventName() string    { return TypeDeadLettered }
func (e DeadLettered) AggregateKey() string { return e.Original.AggregateID }
