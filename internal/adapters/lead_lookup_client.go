package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/internal/quotes/ports"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

const defaultLeadLookupTimeout = 2 * time.Second

// LeadLookupClient calls the lead service internal lookup over HTTP.
// It implements the quotes/ports.LeadLookup interface.
type LeadLookupClient struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
}

// NewLeadLookupClient creates a client against the lead service base URL.
func NewLeadLookupClient(baseURL string, timeout time.Duration, log *logger.Logger) *LeadLookupClient {
	if timeout <= 0 {
		timeout = defaultLeadLookupTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LeadLookupClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        log,
	}
}

// GetLead fetches the current lead. 404 maps to NotFound; transport
// failures and unexpected statuses map to Transient.
func (c *LeadLookupClient) GetLead(ctx context.Context, leadID int64) (ports.LeadSnapshot, error) {
	reqURL := fmt.Sprintf("%s/internal/leads/%d", c.baseURL, leadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ports.LeadSnapshot{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("lead lookup request failed", "lead_id", leadID, "error", err)
		return ports.LeadSnapshot{}, apperr.Transient("lead service unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ports.LeadSnapshot{}, apperr.NotFound(fmt.Sprintf("lead %d not found", leadID))
	default:
		c.log.Error("lead lookup upstream error", "lead_id", leadID, "status", resp.StatusCode)
		return ports.LeadSnapshot{}, apperr.Transient("lead service error", fmt.Errorf("upstream status %d", resp.StatusCode))
	}

	var snap ports.LeadSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return ports.LeadSnapshot{}, apperr.Transient("decode lead lookup response", err)
	}
	return snap, nil
}

var _ ports.LeadLookup = (*LeadLookupClient)(nil)
