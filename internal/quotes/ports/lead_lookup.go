// Package ports declares the dependencies the quotes module needs from
// other services.
package ports

import (
	"context"
	"time"
)

// Lead statuses the quote service reasons about, as served by the lead
// lookup.
const (
	LeadStatusCreated        = "CREATED"
	LeadStatusQuoteRequested = "QUOTE_REQUESTED"
)

// LeadSnapshot is the lead lookup response.
type LeadSnapshot struct {
	LeadID       int64     `json:"leadId"`
	PropertyID   string    `json:"propertyId"`
	OwnerID      string    `json:"ownerId"`
	ZipCode      string    `json:"zipCode"`
	Status       string    `json:"status"`
	RequoteCount int       `json:"requoteCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// LeadLookup is the one synchronous dependency of quote creation.
// Implementations return an apperr NotFound error for an unknown lead and a
// Transient error when the lead service cannot be reached.
type LeadLookup interface {
	GetLead(ctx context.Context, leadID int64) (LeadSnapshot, error)
}
