package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	maxReportBytes = 1 << 20
	healthTimeout  = 5 * time.Second
)

// AgentClient calls a semantic-analysis agent over HTTP.
type AgentClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAgentClient creates a client for the agent at baseURL. Timeouts come from
// the caller's context; httpClient may be nil.
func NewAgentClient(baseURL string, httpClient *http.Client) *AgentClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AgentClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Analyze posts one answer to /analysis. Any non-2xx status or undecodable
// body is an error.
func (c *AgentClient) Analyze(ctx context.Context, req ServiceRequest) (Report, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Report{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analysis", bytes.NewReader(body))
	if err != nil {
		return Report{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Report{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes))
	if err != nil {
		return Report{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Report{}, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	return DecodeReport(respBody)
}

// Health checks GET /health.
func (c *AgentClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReportBytes))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
