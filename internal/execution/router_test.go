package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/models"
	"autotrader/internal/repository"
)

type fakeChannel struct {
	name    string
	calls   int
	results []error
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Submit(ctx context.Context, order Order) (*Receipt, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	if err := f.results[idx]; err != nil {
		return nil, err
	}
	return &Receipt{Channel: f.name, Status: "accepted", FillPrice: order.Price}, nil
}

func mkOrder() Order {
	return Order{
		Symbol:     "SPY",
		Action:     "buy",
		Quantity:   decimal.NewFromInt(12),
		Price:      decimal.NewFromFloat(100),
		StopLoss:   decimal.NewFromFloat(95),
		TakeProfit: decimal.NewFromFloat(115),
		Confidence: 0.75,
	}
}

func TestRouteFirstChannelSucceeds(t *testing.T) {
	broker := &fakeChannel{name: "broker", results: []error{nil}}
	manual := &fakeChannel{name: "manual", results: []error{nil}}
	r := &Router{Channels: []Channel{broker, manual}, MaxRetries: 2}

	receipt, err := r.Route(context.Background(), mkOrder())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if receipt.Channel != "broker" {
		t.Fatalf("channel=%s want broker", receipt.Channel)
	}
	if manual.calls != 0 {
		t.Fatalf("manual.calls=%d want 0", manual.calls)
	}
}

func TestRouteFallsThroughOnUnavailable(t *testing.T) {
	broker := &fakeChannel{name: "broker", results: []error{ErrChannelUnavailable}}
	agent := &fakeChannel{name: "agent", results: []error{ErrChannelUnavailable}}
	manual := &fakeChannel{name: "manual", results: []error{nil}}
	r := &Router{Channels: []Channel{broker, agent, manual}, MaxRetries: 2, Backoff: time.Millisecond}

	receipt, err := r.Route(context.Background(), mkOrder())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if receipt.Channel != "manual" {
		t.Fatalf("channel=%s want manual", receipt.Channel)
	}
	if broker.calls != 3 {
		t.Fatalf("broker.calls=%d want 3 (one try plus two retries)", broker.calls)
	}
	if agent.calls != 3 {
		t.Fatalf("agent.calls=%d want 3", agent.calls)
	}
	if manual.calls != 1 {
		t.Fatalf("manual.calls=%d want 1", manual.calls)
	}
}

func TestRouteRetrySucceedsMidChannel(t *testing.T) {
	broker := &fakeChannel{name: "broker", results: []error{ErrChannelUnavailable, nil}}
	manual := &fakeChannel{name: "manual", results: []error{nil}}
	r := &Router{Channels: []Channel{broker, manual}, MaxRetries: 2, Backoff: time.Millisecond}

	receipt, err := r.Route(context.Background(), mkOrder())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if receipt.Channel != "broker" {
		t.Fatalf("channel=%s want broker", receipt.Channel)
	}
	if broker.calls != 2 {
		t.Fatalf("broker.calls=%d want 2", broker.calls)
	}
}

func TestRouteRejectionStopsOrder(t *testing.T) {
	broker := &fakeChannel{name: "broker", results: []error{&RejectionError{Channel: "broker", Reason: "insufficient funds"}}}
	manual := &fakeChannel{name: "manual", results: []error{nil}}
	r := &Router{Channels: []Channel{broker, manual}, MaxRetries: 2}

	_, err := r.Route(context.Background(), mkOrder())
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("err=%v want RejectionError", err)
	}
	if broker.calls != 1 {
		t.Fatalf("broker.calls=%d want 1, rejections must not be retried", broker.calls)
	}
	if manual.calls != 0 {
		t.Fatalf("manual.calls=%d want 0, rejections must not fall through", manual.calls)
	}
}

func TestRouteAllUnavailable(t *testing.T) {
	broker := &fakeChannel{name: "broker", results: []error{ErrChannelUnavailable}}
	agent := &fakeChannel{name: "agent", results: []error{ErrChannelUnavailable}}
	r := &Router{Channels: []Channel{broker, agent}, MaxRetries: 1, Backoff: time.Millisecond}

	_, err := r.Route(context.Background(), mkOrder())
	if !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("err=%v want ErrChannelUnavailable", err)
	}
}

// instructionRepo captures the queued instruction row.
type instructionRepo struct {
	repository.Repository
	inserted []*models.TradeInstruction
}

func (s *instructionRepo) InsertTradeInstruction(ctx context.Context, item *models.TradeInstruction) error {
	item.ID = uint64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, item)
	return nil
}

func TestManualChannelAlwaysAccepts(t *testing.T) {
	repo := &instructionRepo{}
	ch := &ManualChannel{Repo: repo}

	order := mkOrder()
	order.CreatedAt = time.Date(2025, 6, 2, 15, 4, 5, 0, time.UTC)
	receipt, err := ch.Submit(context.Background(), order)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.Status != "queued" {
		t.Fatalf("status=%s want queued", receipt.Status)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("inserted=%d want 1", len(repo.inserted))
	}

	var payload InstructionPayload
	if err := json.Unmarshal(repo.inserted[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Symbol != "SPY" || payload.Action != "buy" {
		t.Fatalf("payload=%+v", payload)
	}
	if payload.Quantity != 12 || payload.Price != 100 || payload.StopLoss != 95 || payload.TakeProfit != 115 {
		t.Fatalf("payload numbers wrong: %+v", payload)
	}
	if payload.Timestamp != "2025-06-02T15:04:05Z" {
		t.Fatalf("timestamp=%s", payload.Timestamp)
	}

	// The stored JSON must round-trip byte for byte.
	again, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(again, []byte(repo.inserted[0].Payload)) {
		t.Fatalf("payload not stable:\n stored=%s\n again=%s", repo.inserted[0].Payload, again)
	}
}
