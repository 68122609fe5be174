package adapters

import (
	"context"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/quotes/ports"
)

// LeadReader is the part of the lead service the in-process lookup needs.
type LeadReader interface {
	Get(ctx context.Context, id int64) (domain.Lead, error)
}

// LeadLookupAdapter serves the quote service lead lookup from a lead service
// in the same process. It implements the quotes/ports.LeadLookup interface.
type LeadLookupAdapter struct {
	leads LeadReader
}

func NewLeadLookupAdapter(leads LeadReader) *LeadLookupAdapter {
	return &LeadLookupAdapter{leads: leads}
}

func (a *LeadLookupAdapter) GetLead(ctx context.Context, leadID int64) (ports.LeadSnapshot, error) {
	lead, err := a.leads.Get(ctx, leadID)
	if err != nil {
		return ports.LeadSnapshot{}, err
	}
	return ports.LeadSnapshot{
		LeadID:       lead.ID,
		PropertyID:   lead.PropertyID,
		OwnerID:      lead.OwnerID,
		ZipCode:      lead.ZipCode,
		Status:       string(lead.Status),
		RequoteCount: lead.RequoteCount,
		CreatedAt:    lead.CreatedAt,
		UpdatedAt:    lead.UpdatedAt,
	}, nil
}

var _ ports.LeadLookup = (*LeadLookupAdapter)(nil)
