package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrDataUnavailable signals that the price history provider could not serve
// the request. The caller degrades to a hold decision, never a guess.
var ErrDataUnavailable = errors.New("market data unavailable")

type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data API error (%d): %s", e.Status, e.Body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrDataUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, &APIError{Status: resp.StatusCode, Body: string(body)})
	}
	return body, nil
}

// History returns up to days daily candles for symbol, oldest first.
func (c *Client) History(ctx context.Context, symbol string, days int) ([]Candle, error) {
	if c == nil {
		return nil, ErrDataUnavailable
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	query.Set("symbol", symbol)
	if days > 0 {
		query.Set("days", strconv.Itoa(days))
	}
	body, err := c.doRequest(ctx, "/v1/history", query)
	if err != nil {
		return nil, err
	}
	var out struct {
		Candles []Candle `json:"candles"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode history: %v", ErrDataUnavailable, err)
	}
	if len(out.Candles) == 0 {
		return nil, fmt.Errorf("%w: empty history for %s", ErrDataUnavailable, symbol)
	}
	return out.Candles, nil
}
