package transport

import (
	"time"

	"leadflow_backend/internal/leads/domain"
)

type CreateLeadRequest struct {
	PropertyID string `json:"propertyId" validate:"required,max=64"`
	OwnerID    string `json:"ownerId" validate:"required,max=64"`
	ZipCode    string `json:"zipCode" validate:"required,zipcode"`
}

// LeadResponse is both the operator view and the internal lookup contract
// served to the quote service.
type LeadResponse struct {
	LeadID       int64     `json:"leadId"`
	PropertyID   string    `json:"propertyId"`
	OwnerID      string    `json:"ownerId"`
	ZipCode      string    `json:"zipCode"`
	Status       string    `json:"status"`
	RequoteCount int       `json:"requoteCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func ToLeadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{
		LeadID:       l.ID,
		PropertyID:   l.PropertyID,
		OwnerID:      l.OwnerID,
		ZipCode:      l.ZipCode,
		Status:       string(l.Status),
		RequoteCount: l.RequoteCount,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}
