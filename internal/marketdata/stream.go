package marketdata

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type quoteEvent struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	TS     int64   `json:"ts"`
}

type subscribeRequest struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// QuoteStream keeps an in-memory last-price cache fed by a quote websocket.
// It reconnects with backoff and is safe for concurrent readers.
type QuoteStream struct {
	URL     string
	Symbols []string
	Backoff time.Duration
	Logger  *zap.Logger

	mu     sync.RWMutex
	latest map[string]quoteEvent
}

// Latest returns the last streamed price for symbol, if any has arrived.
func (s *QuoteStream) Latest(symbol string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.latest[strings.ToUpper(symbol)]
	if !ok || q.Price <= 0 {
		return 0, false
	}
	return q.Price, true
}

func (s *QuoteStream) Run(ctx context.Context) error {
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return nil
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	for {
		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.Logger != nil {
				s.Logger.Warn("quote stream disconnected", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (s *QuoteStream) runOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 20)

	req := subscribeRequest{Type: "quotes", Symbols: s.Symbols}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("quote stream connected", zap.Int("symbols", len(s.Symbols)))
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var ev quoteEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Symbol == "" {
			continue
		}
		s.mu.Lock()
		if s.latest == nil {
			s.latest = map[string]quoteEvent{}
		}
		s.latest[strings.ToUpper(ev.Symbol)] = ev
		s.mu.Unlock()
	}
}
