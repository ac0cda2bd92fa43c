package execution

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

// AgentChannel hands orders to a local automation agent that drives a retail
// brokerage web UI. It is a fallback behind the broker API.
type AgentChannel struct {
	baseURL    string
	httpClient *http.Client
}

func NewAgentChannel(httpClient *http.Client, baseURL string) *AgentChannel {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AgentChannel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *AgentChannel) Name() string { return "agent" }

type agentResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Ref    string `json:"ref"`
}

func (c *AgentChannel) Submit(ctx context.Context, order Order) (*Receipt, error) {
	if c == nil {
		return nil, ErrChannelUnavailable
	}
	payload, err := json.Marshal(map[string]any{
		"symbol":   order.Symbol,
		"action":   order.Action,
		"quantity": order.Quantity.String(),
		"price":    order.Price.String(),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: agent: %v", ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: agent: read response: %v", ErrChannelUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: agent: status %d", ErrChannelUnavailable, resp.StatusCode)
	}

	var parsed agentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: agent: decode response: %v", ErrChannelUnavailable, err)
	}
	if parsed.Status == "rejected" {
		return nil, &RejectionError{Channel: c.Name(), Reason: parsed.Reason}
	}
	return &Receipt{
		Channel:   c.Name(),
		Status:    parsed.Status,
		Reference: parsed.Ref,
		FillPrice: order.Price,
	}, nil
}
