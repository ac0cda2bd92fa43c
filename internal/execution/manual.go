package execution

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"autotrader/internal/models"
	"autotrader/internal/repository"
)

// InstructionPayload is the exact JSON handed to a human operator. Field
// order and names are stable so an instruction round-trips unchanged.
type InstructionPayload struct {
	Timestamp  string  `json:"timestamp"`
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Confidence float64 `json:"confidence"`
}

// ManualChannel queues instructions for a human. It is the terminal fallback
// and accepts every well-formed order.
type ManualChannel struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (c *ManualChannel) Name() string { return "manual" }

func (c *ManualChannel) Submit(ctx context.Context, order Order) (*Receipt, error) {
	if c == nil || c.Repo == nil {
		return nil, ErrChannelUnavailable
	}
	now := time.Now().UTC()
	if !order.CreatedAt.IsZero() {
		now = order.CreatedAt.UTC()
	}
	qty, _ := order.Quantity.Float64()
	price, _ := order.Price.Float64()
	stop, _ := order.StopLoss.Float64()
	take, _ := order.TakeProfit.Float64()
	payload := InstructionPayload{
		Timestamp:  now.Format(time.RFC3339),
		Symbol:     order.Symbol,
		Action:     order.Action,
		Quantity:   qty,
		Price:      price,
		StopLoss:   stop,
		TakeProfit: take,
		Confidence: order.Confidence,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	item := &models.TradeInstruction{
		Symbol:  order.Symbol,
		Action:  order.Action,
		Payload: datatypes.JSON(raw),
		Status:  "queued",
	}
	if err := c.Repo.InsertTradeInstruction(ctx, item); err != nil {
		return nil, err
	}
	if c.Logger != nil {
		c.Logger.Info("manual instruction queued",
			zap.String("symbol", order.Symbol),
			zap.String("action", order.Action),
			zap.Uint64("instruction_id", item.ID),
		)
	}
	return &Receipt{
		Channel:   c.Name(),
		Status:    "queued",
		FillPrice: order.Price,
	}, nil
}
