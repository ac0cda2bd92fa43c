package outcome

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autotrader/internal/models"
	"autotrader/internal/repository"
	"autotrader/internal/signalmodel"
)

type Retrainer interface {
	Retrain(ctx context.Context, symbol string) (*models.ModelArtifact, error)
}

// ThresholdStore is the orchestrator-owned per-symbol buy threshold. The
// tracker proposes adjustments; the store clamps and applies them from the
// next cycle.
type ThresholdStore interface {
	BuyThreshold(symbol string) float64
	SetBuyThreshold(symbol string, value float64)
}

// Tracker resolves trade outcomes on a slow cadence, maintains the rolling
// success rate per symbol and feeds it back into retraining and threshold
// adaptation.
type Tracker struct {
	Repo       repository.Repository
	Models     Retrainer
	Thresholds ThresholdStore
	Logger     *zap.Logger

	Symbols []string

	Window        time.Duration
	MinTrades     int
	RetrainBelow  float64
	LoosenAbove   float64
	ThresholdStep float64
	FloorBuy      float64
	CapBuy        float64

	Snapshot bool
}

func (t *Tracker) window() time.Duration {
	if t.Window > 0 {
		return t.Window
	}
	return 7 * 24 * time.Hour
}

func (t *Tracker) minTrades() int {
	if t.MinTrades > 0 {
		return t.MinTrades
	}
	return 5
}

func (t *Tracker) RunOnce(ctx context.Context) error {
	if t == nil || t.Repo == nil {
		return nil
	}
	if err := t.resolvePending(ctx); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, symbol := range t.Symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := t.reviewSymbol(ctx, symbol, now); err != nil && t.Logger != nil {
			t.Logger.Warn("outcome review failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return nil
}

// resolvePending settles every pending trade whose position has closed. A
// round trip is a win only when the realized return is strictly positive.
func (t *Tracker) resolvePending(ctx context.Context) error {
	trades, err := t.Repo.ListPendingTradesWithClosedPositions(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, trade := range trades {
		if trade.PositionID == nil {
			continue
		}
		pos, err := t.Repo.GetPositionByID(ctx, *trade.PositionID)
		if err != nil {
			return err
		}
		if pos == nil || pos.ExitPrice == nil || !pos.EntryPrice.IsPositive() {
			continue
		}
		realized := pos.ExitPrice.Sub(pos.EntryPrice).Div(pos.EntryPrice)
		outcome := "loss"
		if realized.GreaterThan(decimal.Zero) {
			outcome = "win"
		}
		if err := t.Repo.UpdateTradeOutcome(ctx, trade.ID, outcome, realized, now); err != nil {
			return err
		}
		if t.Logger != nil {
			t.Logger.Info("trade outcome resolved",
				zap.Uint64("trade_id", trade.ID),
				zap.String("symbol", trade.Symbol),
				zap.String("outcome", outcome),
				zap.String("realized_return", realized.StringFixed(6)),
			)
		}
	}
	return nil
}

func (t *Tracker) reviewSymbol(ctx context.Context, symbol string, now time.Time) error {
	since := now.Add(-t.window())
	wins, losses, err := t.resolvedCounts(ctx, symbol, since)
	if err != nil {
		return err
	}
	resolved := wins + losses
	threshold := 0.0
	if t.Thresholds != nil {
		threshold = t.Thresholds.BuyThreshold(symbol)
	}

	retrained := false
	var rate float64
	if resolved >= t.minTrades() {
		rate = float64(wins) / float64(resolved)
		retrained = t.applyFeedback(ctx, symbol, rate)
		if t.Thresholds != nil {
			threshold = t.Thresholds.BuyThreshold(symbol)
		}
	}

	if t.Snapshot {
		snap := &models.PerformanceSnapshot{
			Symbol:           symbol,
			WindowStart:      since,
			WindowEnd:        now,
			Trades:           resolved,
			Wins:             wins,
			SuccessRate:      rate,
			BuyThreshold:     threshold,
			RetrainTriggered: retrained,
		}
		if err := t.Repo.InsertPerformanceSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) resolvedCounts(ctx context.Context, symbol string, since time.Time) (int, int, error) {
	side := "buy"
	win, loss := "win", "loss"
	wins, err := t.Repo.CountTradeRecords(ctx, repository.ListTradeRecordsParams{
		Symbol: &symbol, Side: &side, Outcome: &win, Since: &since,
	})
	if err != nil {
		return 0, 0, err
	}
	losses, err := t.Repo.CountTradeRecords(ctx, repository.ListTradeRecordsParams{
		Symbol: &symbol, Side: &side, Outcome: &loss, Since: &since,
	})
	if err != nil {
		return 0, 0, err
	}
	return int(wins), int(losses), nil
}

// applyFeedback tightens the entry threshold and retrains when the symbol
// underperforms, loosens when it comfortably outperforms. Reports whether a
// retrain was attempted.
func (t *Tracker) applyFeedback(ctx context.Context, symbol string, rate float64) bool {
	retrainBelow := t.RetrainBelow
	if retrainBelow <= 0 {
		retrainBelow = 0.6
	}
	loosenAbove := t.LoosenAbove
	if loosenAbove <= 0 {
		loosenAbove = 0.7
	}
	step := t.ThresholdStep
	if step <= 0 {
		step = 0.05
	}

	if t.Thresholds != nil {
		current := t.Thresholds.BuyThreshold(symbol)
		next := current
		if rate < retrainBelow {
			next = current + step
		} else if rate > loosenAbove {
			next = current - step
		}
		next = clamp(next, t.floorBuy(), t.capBuy())
		if next != current {
			t.Thresholds.SetBuyThreshold(symbol, next)
			if t.Logger != nil {
				t.Logger.Info("buy threshold adapted",
					zap.String("symbol", symbol),
					zap.Float64("success_rate", rate),
					zap.Float64("from", current),
					zap.Float64("to", next),
				)
			}
		}
	}

	if rate >= retrainBelow || t.Models == nil {
		return false
	}
	if _, err := t.Models.Retrain(ctx, symbol); err != nil {
		var verr *signalmodel.ValidationError
		if errors.As(err, &verr) {
			if t.Logger != nil {
				t.Logger.Warn("retrain kept previous model", zap.String("symbol", symbol), zap.Error(err))
			}
		} else if t.Logger != nil {
			t.Logger.Warn("retrain failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return true
}

func (t *Tracker) floorBuy() float64 {
	if t.FloorBuy > 0 {
		return t.FloorBuy
	}
	return 0.6
}

func (t *Tracker) capBuy() float64 {
	if t.CapBuy > 0 {
		return t.CapBuy
	}
	return 0.8
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
