package transport

import (
	"time"

	"leadflow_backend/internal/quotes/domain"
)

type CreateQuoteRequest struct {
	LeadID  int64   `json:"leadId" validate:"required,gt=0"`
	AgentID string  `json:"agentId" validate:"required,max=64"`
	Amount  float64 `json:"amount" validate:"required,gt=0"`
}

type DecideQuoteRequest struct {
	Decision string `json:"decision" validate:"required,oneof=ACCEPTED REJECTED accepted rejected"`
}

type QuoteResponse struct {
	QuoteID   string     `json:"quoteId"`
	LeadID    int64      `json:"leadId"`
	AgentID   string     `json:"agentId"`
	Amount    float64    `json:"amount"`
	Decision  string     `json:"decision"`
	CreatedAt time.Time  `json:"createdAt"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
}

func ToQuoteResponse(q domain.Quote) QuoteResponse {
	return QuoteResponse{
		QuoteID:   q.ID,
		LeadID:    q.LeadID,
		AgentID:   q.AgentID,
		Amount:    q.Amount,
		Decision:  string(q.Decision),
		CreatedAt: q.CreatedAt,
		DecidedAt: q.DecidedAt,
	}
}

func ToQuoteResponses(items []domain.Quote) []QuoteResponse {
	out := make([]QuoteResponse, 0, len(items))
	for _, q := range items {
		out = append(out, ToQuoteResponse(q))
	}
	return out
}
