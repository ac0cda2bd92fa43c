package features

import (
	"errors"
	"fmt"
	"math"

	"autotrader/internal/marketdata"
)

// ErrInsufficientHistory is returned when fewer closing prices are available
// than the engine's minimum window. Callers must not trade on partial windows.
var ErrInsufficientHistory = errors.New("insufficient history")

const DefaultMinHistory = 200

// FeatureNames is the canonical feature order used when training and scoring.
var FeatureNames = []string{
	"ret_5d",
	"vol_30d",
	"mom_20d",
	"mom_120d",
	"atr_14d",
	"skew_30d",
	"rsi_14",
	"macd",
	"macd_signal",
	"bb_position",
}

type Vector map[string]float64

// Flags are the boolean technical conditions consumed by the decision policy.
type Flags struct {
	TrendBullish         bool
	TrendLineBullish     bool
	OscillatorOversold   bool
	OscillatorOverbought bool
	BandOversold         bool
	BandOverbought       bool
}

// BullishCount counts the conditions that argue for an entry.
func (f Flags) BullishCount() int {
	n := 0
	if f.TrendBullish {
		n++
	}
	if f.TrendLineBullish {
		n++
	}
	if f.OscillatorOversold {
		n++
	}
	if f.BandOversold {
		n++
	}
	return n
}

// BearishCount counts the conditions that argue against holding: the broken
// trend plus the overbought oscillator and band readings.
func (f Flags) BearishCount() int {
	n := 0
	if !f.TrendBullish {
		n++
	}
	if f.OscillatorOverbought {
		n++
	}
	if f.BandOverbought {
		n++
	}
	return n
}

type Engine struct {
	MinHistory int
}

func NewEngine(minHistory int) *Engine {
	if minHistory <= 0 {
		minHistory = DefaultMinHistory
	}
	return &Engine{MinHistory: minHistory}
}

// Compute derives the feature vector and technical flags from daily candles,
// oldest first. The same candles always produce the same output.
func (e *Engine) Compute(candles []marketdata.Candle) (Vector, Flags, error) {
	min := DefaultMinHistory
	if e != nil && e.MinHistory > 0 {
		min = e.MinHistory
	}
	if len(candles) < min {
		return nil, Flags{}, fmt.Errorf("%w: have %d need %d", ErrInsufficientHistory, len(candles), min)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := len(closes) - 1
	price := closes[last]

	returns := dailyReturns(closes)
	ret30 := tail(returns, 30)

	macdLine, signalLine := macd(closes)

	vec := Vector{
		"ret_5d":      pctChange(closes, 5),
		"vol_30d":     stdDev(ret30),
		"mom_20d":     pctChange(closes, 20),
		"mom_120d":    pctChange(closes, 120),
		"atr_14d":     avgRange(candles, 14),
		"skew_30d":    skewness(ret30),
		"rsi_14":      rsi(closes, 14),
		"macd":        macdLine,
		"macd_signal": signalLine,
		"bb_position": bollingerPosition(closes, 20, 2),
	}

	flags := Flags{
		TrendBullish:         sma(closes, 50) > sma(closes, 200),
		TrendLineBullish:     macdLine > signalLine,
		OscillatorOversold:   vec["rsi_14"] < 30,
		OscillatorOverbought: vec["rsi_14"] > 70,
		BandOversold:         vec["bb_position"] < 0,
		BandOverbought:       vec["bb_position"] > 1,
	}

	for name, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, Flags{}, fmt.Errorf("feature %s is not finite at price %.4f", name, price)
		}
	}
	return vec, flags, nil
}

func pctChange(closes []float64, lag int) float64 {
	last := len(closes) - 1
	if last-lag < 0 {
		return 0
	}
	base := closes[last-lag]
	if base == 0 {
		return 0
	}
	return (closes[last] - base) / base
}

func dailyReturns(closes []float64) []float64 {
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

func tail(vals []float64, n int) []float64 {
	if len(vals) <= n {
		return vals
	}
	return vals[len(vals)-n:]
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stdDev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := mean(vals)
	sum := 0.0
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)))
}

// skewness is the third standardized moment; zero when the window is flat.
func skewness(vals []float64) float64 {
	sd := stdDev(vals)
	if sd == 0 || len(vals) == 0 {
		return 0
	}
	m := mean(vals)
	sum := 0.0
	for _, v := range vals {
		d := (v - m) / sd
		sum += d * d * d
	}
	return sum / float64(len(vals))
}

func sma(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	return mean(closes[len(closes)-period:])
}

func emaSeries(vals []float64, period int) []float64 {
	if period <= 0 || len(vals) < period {
		return nil
	}
	out := make([]float64, len(vals))
	k := 2.0 / (float64(period) + 1.0)
	// Seed with the SMA of the first period.
	seed := mean(vals[:period])
	out[period-1] = seed
	for i := period; i < len(vals); i++ {
		out[i] = vals[i]*k + out[i-1]*(1-k)
	}
	for i := 0; i < period-1; i++ {
		out[i] = out[period-1]
	}
	return out
}

// macd returns the latest MACD line (EMA12-EMA26) and its 9-period signal.
func macd(closes []float64) (float64, float64) {
	fast := emaSeries(closes, 12)
	slow := emaSeries(closes, 26)
	if fast == nil || slow == nil {
		return 0, 0
	}
	diff := make([]float64, 0, len(closes)-25)
	for i := 25; i < len(closes); i++ {
		diff = append(diff, fast[i]-slow[i])
	}
	signal := emaSeries(diff, 9)
	if signal == nil {
		return diff[len(diff)-1], 0
	}
	return diff[len(diff)-1], signal[len(signal)-1]
}

// rsi uses Wilder smoothing and is bounded to [0, 100].
func rsi(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// avgRange is the mean high-low span over the last period bars.
func avgRange(candles []marketdata.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		sum += c.High - c.Low
	}
	return sum / float64(period)
}

// bollingerPosition places the close inside the period/width bands: 0 at the
// lower band, 1 at the upper. A flat window yields 0.5, never NaN.
func bollingerPosition(closes []float64, period int, width float64) float64 {
	if period <= 0 || len(closes) < period {
		return 0.5
	}
	window := closes[len(closes)-period:]
	mid := mean(window)
	sd := stdDev(window)
	if sd == 0 {
		return 0.5
	}
	lower := mid - width*sd
	upper := mid + width*sd
	return (closes[len(closes)-1] - lower) / (upper - lower)
}
