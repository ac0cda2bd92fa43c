package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autotrader/internal/models"
	"autotrader/internal/repository"
)

// PriceSource returns the latest known price for a symbol.
type PriceSource interface {
	Latest(symbol string) (float64, bool)
}

// PortfolioSnapshotService records an hourly valuation of open positions.
// When no streamed quote is available the entry price stands in, so the
// snapshot is always complete.
type PortfolioSnapshotService struct {
	Repo   repository.Repository
	Quotes PriceSource
	Logger *zap.Logger
	Flags  *SystemSettingsService
}

func (s *PortfolioSnapshotService) RunOnce(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeaturePortfolioSnapshot, true) {
		return nil
	}
	positions, err := s.Repo.ListOpenPositions(ctx)
	if err != nil {
		return err
	}

	costBasis := decimal.Zero
	marketVal := decimal.Zero
	for _, pos := range positions {
		cost := pos.Quantity.Mul(pos.EntryPrice)
		costBasis = costBasis.Add(cost)
		mark := pos.EntryPrice
		if s.Quotes != nil {
			if price, ok := s.Quotes.Latest(pos.Symbol); ok && price > 0 {
				mark = decimal.NewFromFloat(price)
			}
		}
		marketVal = marketVal.Add(pos.Quantity.Mul(mark))
	}

	summary, err := s.Repo.PositionsSummary(ctx)
	if err != nil {
		return err
	}
	realized := decimal.Zero
	if summary != nil {
		realized = summary.TotalRealized
	}

	now := time.Now().UTC().Truncate(time.Hour)
	item := &models.PortfolioSnapshot{
		SnapshotAt:     now,
		OpenPositions:  len(positions),
		TotalCostBasis: costBasis,
		TotalMarketVal: marketVal,
		UnrealizedPnL:  marketVal.Sub(costBasis),
		RealizedPnL:    realized,
	}
	if err := s.Repo.InsertPortfolioSnapshot(ctx, item); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Debug("portfolio snapshot recorded",
			zap.Int("open_positions", item.OpenPositions),
			zap.String("market_value", marketVal.StringFixed(2)),
		)
	}
	return nil
}
