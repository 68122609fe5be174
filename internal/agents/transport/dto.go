package transport

import (
	"time"

	"leadflow_backend/internal/agents/domain"
)

type AssignmentResponse struct {
	LeadID    int64     `json:"leadId"`
	ZipCode   string    `json:"zipCode"`
	State     string    `json:"state"`
	AgentID   *string   `json:"agentId"`
	Attempts  int       `json:"attempts"`
	LastError *string   `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func ToAssignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		LeadID:    a.LeadID,
		ZipCode:   a.ZipCode,
		State:     string(a.State),
		AgentID:   a.AgentID,
		Attempts:  a.Attempts,
		LastError: a.LastError,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
