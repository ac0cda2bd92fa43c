package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"autotrader/internal/decision"
	"autotrader/internal/execution"
	"autotrader/internal/features"
	"autotrader/internal/marketdata"
	"autotrader/internal/models"
	"autotrader/internal/repository"
	"autotrader/internal/signalmodel"
)

// ErrStateCorruption flags an invariant breach in committed state, e.g. two
// open positions for one symbol. The engine refuses to trade through it.
var ErrStateCorruption = errors.New("state corruption")

// HistoryProvider yields daily candles for a symbol, oldest first.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, days int) ([]marketdata.Candle, error)
}

// PriceCache exposes the latest streamed price, used by the forced-exit sweep
// between full cycles.
type PriceCache interface {
	Latest(symbol string) (float64, bool)
}

// ConfidenceProvider scores a feature vector with the symbol's active model.
type ConfidenceProvider interface {
	Confidence(ctx context.Context, symbol string, vec features.Vector) (float64, int, error)
}

type symbolState struct {
	lastTradeAt  *time.Time
	buyThreshold float64
}

// Engine owns all mutable per-symbol trading state. Workers compute
// decisions from read-only snapshots; only the engine commits state and
// submits orders, serialized per symbol.
type Engine struct {
	Repo     repository.Repository
	Market   HistoryProvider
	Quotes   PriceCache
	Features *features.Engine
	Models   ConfidenceProvider
	Policy   decision.Policy
	Router   *execution.Router
	Logger   *zap.Logger

	Symbols       []string
	HistoryDays   int
	EquityUSD     float64
	DefaultBuyThr float64
	CycleInterval time.Duration
	IdleInterval  time.Duration
	Workers       int
	Location      *time.Location

	mu           sync.Mutex
	state        map[string]*symbolState
	cycleRunning bool
}

type cycleResult struct {
	Symbol   string
	Dec      decision.Decision
	Position *models.Position
}

func (e *Engine) defaultThreshold() float64 {
	if e.DefaultBuyThr > 0 {
		return e.DefaultBuyThr
	}
	return 0.6
}

func (e *Engine) symState(symbol string) *symbolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		e.state = map[string]*symbolState{}
	}
	st, ok := e.state[symbol]
	if !ok {
		st = &symbolState{buyThreshold: e.defaultThreshold()}
		e.state[symbol] = st
	}
	return st
}

// BuyThreshold implements the outcome tracker's threshold store.
func (e *Engine) BuyThreshold(symbol string) float64 {
	st := e.symState(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	return st.buyThreshold
}

func (e *Engine) SetBuyThreshold(symbol string, value float64) {
	st := e.symState(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	st.buyThreshold = value
}

func (e *Engine) lastTradeAt(symbol string) *time.Time {
	st := e.symState(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	return st.lastTradeAt
}

func (e *Engine) markTraded(symbol string, at time.Time) {
	st := e.symState(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	ts := at
	st.lastTradeAt = &ts
}

// seedState warms the cooldown clock from persisted trades so a restart does
// not double-trade inside the interval.
func (e *Engine) seedState(ctx context.Context) {
	for _, symbol := range e.Symbols {
		ts, err := e.Repo.LastTradeTime(ctx, symbol)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Warn("seed last trade time failed", zap.String("symbol", symbol), zap.Error(err))
			}
			continue
		}
		if ts != nil {
			e.markTraded(symbol, *ts)
		}
	}
}

func (e *Engine) Run(ctx context.Context) error {
	if e == nil || e.Repo == nil {
		return nil
	}
	e.seedState(ctx)
	for {
		e.RunCycle(ctx)
		interval := e.nextInterval(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// nextInterval picks the fast cadence during exchange hours and the idle
// cadence otherwise.
func (e *Engine) nextInterval(now time.Time) time.Duration {
	cycle := e.CycleInterval
	if cycle <= 0 {
		cycle = 5 * time.Minute
	}
	idle := e.IdleInterval
	if idle <= 0 {
		idle = time.Hour
	}
	if e.marketOpen(now) {
		return cycle
	}
	return idle
}

func (e *Engine) marketOpen(now time.Time) bool {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}

// RunCycle evaluates every symbol once. Overlapping invocations are skipped
// so a slow cycle never races a fresh tick.
func (e *Engine) RunCycle(ctx context.Context) {
	e.mu.Lock()
	if e.cycleRunning {
		e.mu.Unlock()
		if e.Logger != nil {
			e.Logger.Warn("cycle still running, tick skipped")
		}
		return
	}
	e.cycleRunning = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cycleRunning = false
		e.mu.Unlock()
	}()

	now := time.Now().UTC()
	results := e.evaluateAll(ctx, now)

	// Commit phase: the engine alone mutates state and talks to channels,
	// one symbol at a time.
	for _, res := range results {
		if ctx.Err() != nil {
			return
		}
		e.commit(ctx, now, res)
	}
}

// evaluateAll fans symbols out to a bounded worker pool. Workers are pure
// with respect to engine state: they read snapshots and return decisions.
func (e *Engine) evaluateAll(ctx context.Context, now time.Time) []cycleResult {
	workers := e.Workers
	if workers <= 0 {
		workers = 4
	}
	jobs := make(chan string)
	out := make(chan cycleResult, len(e.Symbols))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				out <- e.evaluateSymbol(ctx, now, symbol)
			}
		}()
	}
	for _, symbol := range e.Symbols {
		if ctx.Err() != nil {
			break
		}
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()
	close(out)

	byIndex := map[string]cycleResult{}
	for res := range out {
		byIndex[res.Symbol] = res
	}
	results := make([]cycleResult, 0, len(byIndex))
	for _, symbol := range e.Symbols {
		if res, ok := byIndex[symbol]; ok {
			results = append(results, res)
		}
	}
	return results
}

func (e *Engine) evaluateSymbol(ctx context.Context, now time.Time, symbol string) cycleResult {
	res := cycleResult{Symbol: symbol}

	position, err := e.Repo.GetOpenPositionBySymbol(ctx, symbol)
	if err != nil {
		res.Dec = holdDecision("position_load_failed")
		e.logDegraded(symbol, "load open position", err)
		return res
	}
	res.Position = position

	days := e.HistoryDays
	if days <= 0 {
		days = 400
	}
	candles, err := e.Market.History(ctx, symbol, days)
	if err != nil {
		res.Dec = holdDecision("data_unavailable")
		e.logDegraded(symbol, "fetch history", err)
		return res
	}
	price := candles[len(candles)-1].Close

	vec, flags, err := e.Features.Compute(candles)
	if err != nil {
		if errors.Is(err, features.ErrInsufficientHistory) {
			res.Dec = holdDecision("insufficient_history")
		} else {
			res.Dec = holdDecision("feature_error")
		}
		e.logDegraded(symbol, "compute features", err)
		return res
	}

	in := decision.Input{
		Symbol:       symbol,
		Now:          now,
		Price:        price,
		Flags:        flags,
		BuyThreshold: e.BuyThreshold(symbol),
		LastTradeAt:  e.lastTradeAt(symbol),
		Position:     position,
		EquityUSD:    e.EquityUSD,
	}

	conf, version, err := e.Models.Confidence(ctx, symbol, vec)
	switch {
	case err == nil:
		in.Confidence = &conf
		in.ModelVersion = version
	case errors.Is(err, signalmodel.ErrModelUnavailable):
		// Degraded: the policy falls back to flag-only signals.
		e.logDegraded(symbol, "model unavailable", err)
	case errors.Is(err, signalmodel.ErrFeatureMismatch):
		res.Dec = holdDecision("feature_mismatch")
		e.logDegraded(symbol, "score features", err)
		return res
	default:
		res.Dec = holdDecision("model_error")
		e.logDegraded(symbol, "score features", err)
		return res
	}

	res.Dec = e.Policy.Decide(in)
	return res
}

func holdDecision(reason string) decision.Decision {
	return decision.Decision{Action: decision.ActionHold, Reason: reason}
}

func (e *Engine) logDegraded(symbol, stage string, err error) {
	if e.Logger != nil {
		e.Logger.Warn("cycle degraded", zap.String("symbol", symbol), zap.String("stage", stage), zap.Error(err))
	}
}

func (e *Engine) commit(ctx context.Context, now time.Time, res cycleResult) {
	if res.Dec.Action != decision.ActionHold {
		// Once the cycle has produced an order, shutdown must not separate
		// the submission from its audit row or its persisted record.
		ctx = context.WithoutCancel(ctx)
	}
	e.auditDecision(ctx, now, res.Symbol, res.Dec)
	if res.Dec.Action == decision.ActionHold {
		return
	}
	if err := e.Execute(ctx, res.Symbol, res.Dec, res.Position); err != nil {
		if e.Logger != nil {
			e.Logger.Error("execution failed",
				zap.String("symbol", res.Symbol),
				zap.String("action", string(res.Dec.Action)),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) auditDecision(ctx context.Context, now time.Time, symbol string, dec decision.Decision) {
	item := &models.DecisionLog{
		Symbol:       symbol,
		CycleAt:      now,
		Action:       string(dec.Action),
		Reason:       dec.Reason,
		Confidence:   dec.Confidence,
		ModelVersion: dec.ModelVersion,
		SizeFraction: dec.SizeFraction,
		Forced:       dec.Forced,
	}
	if err := e.Repo.InsertDecisionLog(ctx, item); err != nil && e.Logger != nil {
		e.Logger.Warn("decision audit failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// Execute routes the order and persists the result. Both the submission and
// the follow-up transaction run on a detached context: once the order is on
// the wire, cancellation must not be able to drop its record.
func (e *Engine) Execute(ctx context.Context, symbol string, dec decision.Decision, position *models.Position) error {
	ctx = context.WithoutCancel(ctx)
	switch dec.Action {
	case decision.ActionBuy:
		if position != nil && position.Status == "open" {
			return fmt.Errorf("%w: buy routed with open position for %s", ErrStateCorruption, symbol)
		}
	case decision.ActionSell:
		if position == nil || position.Status != "open" {
			return fmt.Errorf("%w: sell routed without open position for %s", ErrStateCorruption, symbol)
		}
	}

	conf := 0.0
	if dec.Confidence != nil {
		conf = *dec.Confidence
	}
	order := execution.Order{
		Symbol:     symbol,
		Action:     string(dec.Action),
		Quantity:   dec.Quantity,
		Price:      dec.Price,
		StopLoss:   dec.StopLoss,
		TakeProfit: dec.TakeProfit,
		Confidence: conf,
		CreatedAt:  time.Now().UTC(),
	}

	receipt, err := e.Router.Route(ctx, order)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	switch dec.Action {
	case decision.ActionBuy:
		err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
			pos := &models.Position{
				Symbol:     symbol,
				Quantity:   dec.Quantity,
				EntryPrice: receipt.FillPrice,
				StopLoss:   dec.StopLoss,
				TakeProfit: dec.TakeProfit,
				Status:     "open",
				OpenedAt:   now,
			}
			if err := e.Repo.InsertPositionTx(ctx, tx, pos); err != nil {
				return err
			}
			trade := e.tradeRecord(symbol, dec, receipt, now)
			trade.PositionID = &pos.ID
			return e.Repo.InsertTradeRecordTx(ctx, tx, trade)
		})
	case decision.ActionSell:
		realized := receipt.FillPrice.Sub(position.EntryPrice).Mul(position.Quantity)
		err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
			if err := e.Repo.ClosePositionTx(ctx, tx, position.ID, receipt.FillPrice, realized, dec.Reason, now); err != nil {
				return err
			}
			trade := e.tradeRecord(symbol, dec, receipt, now)
			trade.PositionID = &position.ID
			return e.Repo.InsertTradeRecordTx(ctx, tx, trade)
		})
	default:
		return nil
	}
	if err != nil {
		return err
	}

	e.markTraded(symbol, now)
	if e.Logger != nil {
		e.Logger.Info("order executed",
			zap.String("symbol", symbol),
			zap.String("action", string(dec.Action)),
			zap.String("channel", receipt.Channel),
			zap.String("quantity", dec.Quantity.String()),
			zap.String("reason", dec.Reason),
			zap.Bool("forced", dec.Forced),
		)
	}
	return nil
}

func (e *Engine) tradeRecord(symbol string, dec decision.Decision, receipt *execution.Receipt, now time.Time) *models.TradeRecord {
	conf := 0.0
	if dec.Confidence != nil {
		conf = *dec.Confidence
	}
	return &models.TradeRecord{
		Symbol:       symbol,
		Side:         string(dec.Action),
		Quantity:     dec.Quantity,
		Price:        receipt.FillPrice,
		Channel:      receipt.Channel,
		Confidence:   conf,
		ModelVersion: dec.ModelVersion,
		Reason:       dec.Reason,
		Outcome:      "pending",
		ExecutedAt:   now,
	}
}

// SweepOnce checks streamed prices against open positions between cycles.
// Stop and take breaches sell immediately, bypassing cooldown.
func (e *Engine) SweepOnce(ctx context.Context) error {
	if e == nil || e.Repo == nil || e.Quotes == nil {
		return nil
	}
	positions, err := e.Repo.ListOpenPositions(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range positions {
		pos := positions[i]
		price, ok := e.Quotes.Latest(pos.Symbol)
		if !ok {
			continue
		}
		dec := e.Policy.Decide(decision.Input{
			Symbol:   pos.Symbol,
			Now:      now,
			Price:    price,
			Position: &pos,
		})
		if !dec.Forced {
			continue
		}
		e.auditDecision(ctx, now, pos.Symbol, dec)
		if err := e.Execute(ctx, pos.Symbol, dec, &pos); err != nil && e.Logger != nil {
			e.Logger.Error("forced exit failed", zap.String("symbol", pos.Symbol), zap.Error(err))
		}
	}
	return nil
}

// RunSweep drives SweepOnce on its own short ticker while the stream feeds
// the price cache.
func (e *Engine) RunSweep(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.SweepOnce(ctx); err != nil && e.Logger != nil {
				e.Logger.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}
