package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// BrokerChannel submits orders to the brokerage REST API. Stop and take
// levels ride along as a bracket so the venue can enforce them server-side.
type BrokerChannel struct {
	baseURL    string
	apiKeyEnv  string
	secretEnv  string
	httpClient *http.Client
}

func NewBrokerChannel(httpClient *http.Client, baseURL, apiKeyEnv, secretEnv string) *BrokerChannel {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &BrokerChannel{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKeyEnv:  apiKeyEnv,
		secretEnv:  secretEnv,
		httpClient: httpClient,
	}
}

func (c *BrokerChannel) Name() string { return "broker" }

type brokerOrderRequest struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	OrderClass  string `json:"order_class,omitempty"`
	StopLoss    *struct {
		StopPrice string `json:"stop_price"`
	} `json:"stop_loss,omitempty"`
	TakeProfit *struct {
		LimitPrice string `json:"limit_price"`
	} `json:"take_profit,omitempty"`
}

type brokerOrderResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledAvgPrice string `json:"filled_avg_price"`
	Message        string `json:"message"`
}

func (c *BrokerChannel) Submit(ctx context.Context, order Order) (*Receipt, error) {
	if c == nil {
		return nil, ErrChannelUnavailable
	}
	reqBody := brokerOrderRequest{
		Symbol:      order.Symbol,
		Qty:         order.Quantity.String(),
		Side:        order.Action,
		Type:        "market",
		TimeInForce: "day",
	}
	if order.Action == "buy" && order.StopLoss.IsPositive() && order.TakeProfit.IsPositive() {
		reqBody.OrderClass = "bracket"
		reqBody.StopLoss = &struct {
			StopPrice string `json:"stop_price"`
		}{StopPrice: order.StopLoss.StringFixed(2)}
		reqBody.TakeProfit = &struct {
			LimitPrice string `json:"limit_price"`
		}{LimitPrice: order.TakeProfit.StringFixed(2)}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := os.Getenv(c.apiKeyEnv); key != "" {
		req.Header.Set("APCA-API-KEY-ID", key)
	}
	if secret := os.Getenv(c.secretEnv); secret != "" {
		req.Header.Set("APCA-API-SECRET-KEY", secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: broker: %v", ErrChannelUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: broker: read response: %v", ErrChannelUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var parsed brokerOrderResponse
		_ = json.Unmarshal(body, &parsed)
		reason := parsed.Message
		if reason == "" {
			reason = fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))
		}
		return nil, &RejectionError{Channel: c.Name(), Reason: reason}
	default:
		return nil, fmt.Errorf("%w: broker: status %d", ErrChannelUnavailable, resp.StatusCode)
	}

	var parsed brokerOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: broker: decode response: %v", ErrChannelUnavailable, err)
	}
	receipt := &Receipt{
		Channel:   c.Name(),
		Status:    parsed.Status,
		Reference: parsed.ID,
		FillPrice: order.Price,
	}
	return receipt, nil
}
