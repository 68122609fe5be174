// Package client provides the HTTP client for the agent directory.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadflow_backend/internal/agents/domain"
	"leadflow_backend/platform/logger"

	"golang.org/x/time/rate"
)

const defaultRPS = 20

// Client is the HTTP client for the agent directory. Calls are throttled so
// a burst of new leads cannot flood the directory.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a directory client. rps <= 0 uses the default rate.
func New(baseURL string, rps float64, log *logger.Logger) *Client {
	if rps <= 0 {
		rps = defaultRPS
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:        log,
	}
}

// EligibleAgents fetches the agents covering zipCode, best first.
func (c *Client) EligibleAgents(ctx context.Context, zipCode string) ([]domain.Agent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("zipCode", zipCode)
	reqURL := fmt.Sprintf("%s/agents/eligible?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("agent directory request failed", "error", err, "zip_code", zipCode)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Success - continue to decode
	case http.StatusNotFound:
		// No agent covers this zip code - not an error
		c.log.Debug("agent directory no agents", "zip_code", zipCode)
		return nil, nil
	default:
		c.log.Error("agent directory upstream error", "status", resp.StatusCode, "zip_code", zipCode)
		return nil, fmt.Errorf("upstream error: status %d", resp.StatusCode)
	}

	var body struct {
		Agents []domain.Agent `json:"agents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body.Agents, nil
}

// StaticDirectory serves a fixed zip code to agents table. It backs the
// single-process mode and tests.
type StaticDirectory map[string][]domain.Agent

func (d StaticDirectory) EligibleAgents(_ context.Context, zipCode string) ([]domain.Agent, error) {
	return d[zipCode], nil
}
