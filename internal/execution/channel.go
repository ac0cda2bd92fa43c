package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrChannelUnavailable means a channel (or every channel, when returned by
// the router) could not take the order due to transport or availability
// problems. Unavailable orders may be retried; rejected orders may not.
var ErrChannelUnavailable = errors.New("execution channel unavailable")

// RejectionError is a definitive business rejection (unknown symbol,
// insufficient funds). The router never retries or falls through on it.
type RejectionError struct {
	Channel string
	Reason  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected by %s: %s", e.Channel, e.Reason)
}

type Order struct {
	Symbol     string
	Action     string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Confidence float64
	CreatedAt  time.Time
}

type Receipt struct {
	Channel   string
	Status    string
	FillPrice decimal.Decimal
	Reference string
}

type Channel interface {
	Name() string
	Submit(ctx context.Context, order Order) (*Receipt, error)
}
