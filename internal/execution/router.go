package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Router walks the configured channels in priority order. Unavailable
// channels are retried with backoff and then skipped; a business rejection
// stops the order cold.
type Router struct {
	Channels   []Channel
	MaxRetries int
	Backoff    time.Duration
	Logger     *zap.Logger
}

func (r *Router) Route(ctx context.Context, order Order) (*Receipt, error) {
	if r == nil || len(r.Channels) == 0 {
		return nil, fmt.Errorf("%w: no channels configured", ErrChannelUnavailable)
	}
	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for _, ch := range r.Channels {
		receipt, err := r.submitWithRetry(ctx, ch, order, retries)
		if err == nil {
			return receipt, nil
		}
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			// Definitive answer: do not try the remaining channels.
			return nil, err
		}
		lastErr = err
		if r.Logger != nil {
			r.Logger.Warn("execution channel exhausted",
				zap.String("channel", ch.Name()),
				zap.String("symbol", order.Symbol),
				zap.Error(err),
			)
		}
	}
	return nil, fmt.Errorf("%w: all channels exhausted: %v", ErrChannelUnavailable, lastErr)
}

func (r *Router) submitWithRetry(ctx context.Context, ch Channel, order Order, retries int) (*Receipt, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, r.Backoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
		receipt, err := ch.Submit(ctx, order)
		if err == nil {
			return receipt, nil
		}
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
