package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/models"
	"autotrader/internal/repository"
)

type stubRepo struct {
	repository.Repository

	pending   []models.TradeRecord
	positions map[uint64]*models.Position
	resolved  map[uint64]string
	returns   map[uint64]decimal.Decimal

	winCounts  map[string]int64
	lossCounts map[string]int64
	snapshots  []*models.PerformanceSnapshot
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		positions:  map[uint64]*models.Position{},
		resolved:   map[uint64]string{},
		returns:    map[uint64]decimal.Decimal{},
		winCounts:  map[string]int64{},
		lossCounts: map[string]int64{},
	}
}

func (s *stubRepo) ListPendingTradesWithClosedPositions(ctx context.Context) ([]models.TradeRecord, error) {
	return s.pending, nil
}

func (s *stubRepo) GetPositionByID(ctx context.Context, id uint64) (*models.Position, error) {
	return s.positions[id], nil
}

func (s *stubRepo) UpdateTradeOutcome(ctx context.Context, id uint64, outcome string, realized decimal.Decimal, at time.Time) error {
	s.resolved[id] = outcome
	s.returns[id] = realized
	return nil
}

func (s *stubRepo) CountTradeRecords(ctx context.Context, params repository.ListTradeRecordsParams) (int64, error) {
	if params.Outcome == nil || params.Symbol == nil {
		return 0, nil
	}
	if *params.Outcome == "win" {
		return s.winCounts[*params.Symbol], nil
	}
	return s.lossCounts[*params.Symbol], nil
}

func (s *stubRepo) InsertPerformanceSnapshot(ctx context.Context, item *models.PerformanceSnapshot) error {
	s.snapshots = append(s.snapshots, item)
	return nil
}

type stubRetrainer struct {
	calls []string
}

func (s *stubRetrainer) Retrain(ctx context.Context, symbol string) (*models.ModelArtifact, error) {
	s.calls = append(s.calls, symbol)
	return &models.ModelArtifact{Symbol: symbol, Version: 2}, nil
}

type mapThresholds struct {
	values map[string]float64
}

func (m *mapThresholds) BuyThreshold(symbol string) float64 {
	return m.values[symbol]
}

func (m *mapThresholds) SetBuyThreshold(symbol string, value float64) {
	m.values[symbol] = value
}

func dptr(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestResolvePendingWinAndLoss(t *testing.T) {
	repo := newStubRepo()
	winPos := uint64(1)
	lossPos := uint64(2)
	flatPos := uint64(3)
	exitUp := dptr(110)
	exitDown := dptr(90)
	exitFlat := dptr(100)
	repo.positions[winPos] = &models.Position{ID: winPos, Status: "closed", EntryPrice: dptr(100), ExitPrice: &exitUp}
	repo.positions[lossPos] = &models.Position{ID: lossPos, Status: "closed", EntryPrice: dptr(100), ExitPrice: &exitDown}
	repo.positions[flatPos] = &models.Position{ID: flatPos, Status: "closed", EntryPrice: dptr(100), ExitPrice: &exitFlat}
	repo.pending = []models.TradeRecord{
		{ID: 11, Symbol: "SPY", Side: "buy", PositionID: &winPos},
		{ID: 12, Symbol: "SPY", Side: "buy", PositionID: &lossPos},
		{ID: 13, Symbol: "SPY", Side: "buy", PositionID: &flatPos},
	}

	tracker := &Tracker{Repo: repo}
	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := repo.resolved[11]; got != "win" {
		t.Fatalf("trade 11 outcome=%s want win", got)
	}
	if got := repo.resolved[12]; got != "loss" {
		t.Fatalf("trade 12 outcome=%s want loss", got)
	}
	// Exactly zero return is not a win.
	if got := repo.resolved[13]; got != "loss" {
		t.Fatalf("trade 13 outcome=%s want loss", got)
	}
}

func TestPoorPerformanceTriggersRetrainAndTightens(t *testing.T) {
	repo := newStubRepo()
	repo.winCounts["SPY"] = 2
	repo.lossCounts["SPY"] = 3

	retrainer := &stubRetrainer{}
	thresholds := &mapThresholds{values: map[string]float64{"SPY": 0.6}}
	tracker := &Tracker{
		Repo:       repo,
		Models:     retrainer,
		Thresholds: thresholds,
		Symbols:    []string{"SPY"},
		MinTrades:  5,
		Snapshot:   true,
	}
	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(retrainer.calls) != 1 || retrainer.calls[0] != "SPY" {
		t.Fatalf("retrain calls=%v want [SPY]", retrainer.calls)
	}
	if got := thresholds.values["SPY"]; got != 0.65 {
		t.Fatalf("threshold=%v want 0.65", got)
	}
	if len(repo.snapshots) != 1 {
		t.Fatalf("snapshots=%d want 1", len(repo.snapshots))
	}
	snap := repo.snapshots[0]
	if snap.Trades != 5 || snap.Wins != 2 || snap.SuccessRate != 0.4 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if !snap.RetrainTriggered {
		t.Fatalf("snapshot should record retrain")
	}
}

func TestThresholdClampedAtCap(t *testing.T) {
	repo := newStubRepo()
	repo.winCounts["SPY"] = 1
	repo.lossCounts["SPY"] = 4

	thresholds := &mapThresholds{values: map[string]float64{"SPY": 0.8}}
	tracker := &Tracker{
		Repo:       repo,
		Thresholds: thresholds,
		Symbols:    []string{"SPY"},
		MinTrades:  5,
	}
	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := thresholds.values["SPY"]; got != 0.8 {
		t.Fatalf("threshold=%v want clamp at 0.8", got)
	}
}

func TestStrongPerformanceLoosensWithFloor(t *testing.T) {
	repo := newStubRepo()
	repo.winCounts["SPY"] = 8
	repo.lossCounts["SPY"] = 2

	retrainer := &stubRetrainer{}
	thresholds := &mapThresholds{values: map[string]float64{"SPY": 0.6}}
	tracker := &Tracker{
		Repo:       repo,
		Models:     retrainer,
		Thresholds: thresholds,
		Symbols:    []string{"SPY"},
		MinTrades:  5,
	}
	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	// Already at the floor: loosening must not cross it.
	if got := thresholds.values["SPY"]; got != 0.6 {
		t.Fatalf("threshold=%v want floor 0.6", got)
	}
	if len(retrainer.calls) != 0 {
		t.Fatalf("retrain calls=%v want none on strong performance", retrainer.calls)
	}
}

func TestTooFewTradesNoFeedback(t *testing.T) {
	repo := newStubRepo()
	repo.winCounts["SPY"] = 0
	repo.lossCounts["SPY"] = 4

	retrainer := &stubRetrainer{}
	thresholds := &mapThresholds{values: map[string]float64{"SPY": 0.6}}
	tracker := &Tracker{
		Repo:       repo,
		Models:     retrainer,
		Thresholds: thresholds,
		Symbols:    []string{"SPY"},
		MinTrades:  5,
	}
	if err := tracker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(retrainer.calls) != 0 {
		t.Fatalf("retrain calls=%v want none below min trades", retrainer.calls)
	}
	if got := thresholds.values["SPY"]; got != 0.6 {
		t.Fatalf("threshold=%v want unchanged", got)
	}
}
