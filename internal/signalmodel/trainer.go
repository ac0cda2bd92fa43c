package signalmodel

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

// TrainResult is the training service's response: a fitted candidate model
// with its out-of-sample validation score.
type TrainResult struct {
	Symbol          string   `json:"symbol"`
	Features        []string `json:"features"`
	Params          Params   `json:"params"`
	ValidationScore float64  `json:"validation_score"`
	TrainedAt       string   `json:"trained_at"`
}

// TrainerClient talks to the external model training service over HTTP.
type TrainerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewTrainerClient(httpClient *http.Client, baseURL string) *TrainerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &TrainerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *TrainerClient) Train(ctx context.Context, symbol string) (*TrainResult, error) {
	if c == nil {
		return nil, fmt.Errorf("trainer client is nil")
	}
	payload, err := json.Marshal(map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/train", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("train request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trainer error (%d): %s", resp.StatusCode, string(body))
	}

	var out TrainResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode train result: %w", err)
	}
	if len(out.Features) == 0 {
		return nil, fmt.Errorf("trainer returned no features for %s", symbol)
	}
	return &out, nil
}
