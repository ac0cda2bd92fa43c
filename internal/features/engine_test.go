package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"autotrader/internal/marketdata"
)

func mkCandles(t *testing.T, closes []float64) []marketdata.Candle {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]marketdata.Candle, len(closes))
	for i, c := range closes {
		out[i] = marketdata.Candle{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

func flatSeries(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func risingSeries(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestComputeInsufficientHistory(t *testing.T) {
	eng := NewEngine(200)
	_, _, err := eng.Compute(mkCandles(t, risingSeries(150, 100, 0.5)))
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err=%v want ErrInsufficientHistory", err)
	}
}

func TestComputeDeterministic(t *testing.T) {
	eng := NewEngine(200)
	candles := mkCandles(t, risingSeries(260, 100, 0.3))
	a, _, err := eng.Compute(candles)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	b, _, err := eng.Compute(candles)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, name := range FeatureNames {
		if a[name] != b[name] {
			t.Fatalf("feature %s not deterministic: %v vs %v", name, a[name], b[name])
		}
	}
}

func TestComputeAllFeaturesPresent(t *testing.T) {
	eng := NewEngine(200)
	vec, _, err := eng.Compute(mkCandles(t, risingSeries(250, 50, 0.25)))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, name := range FeatureNames {
		v, ok := vec[name]
		if !ok {
			t.Fatalf("feature %s missing", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("feature %s not finite: %v", name, v)
		}
	}
}

func TestFlatSeriesNeverNaN(t *testing.T) {
	eng := NewEngine(200)
	vec, flags, err := eng.Compute(mkCandles(t, flatSeries(240, 100)))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := vec["bb_position"]; got != 0.5 {
		t.Fatalf("bb_position=%v want 0.5 on flat series", got)
	}
	if got := vec["skew_30d"]; got != 0 {
		t.Fatalf("skew_30d=%v want 0 on flat series", got)
	}
	if got := vec["vol_30d"]; got != 0 {
		t.Fatalf("vol_30d=%v want 0 on flat series", got)
	}
	if flags.BandOversold || flags.BandOverbought {
		t.Fatalf("flat series should not trip band flags: %+v", flags)
	}
}

func TestRSIBounds(t *testing.T) {
	eng := NewEngine(200)

	up, _, err := eng.Compute(mkCandles(t, risingSeries(240, 100, 1)))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if up["rsi_14"] < 0 || up["rsi_14"] > 100 {
		t.Fatalf("rsi=%v out of [0,100]", up["rsi_14"])
	}
	if up["rsi_14"] <= 70 {
		t.Fatalf("rsi=%v want >70 on monotone gains", up["rsi_14"])
	}

	downCloses := make([]float64, 240)
	for i := range downCloses {
		downCloses[i] = 1000 - float64(i)*2
	}
	down, _, err := eng.Compute(mkCandles(t, downCloses))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if down["rsi_14"] < 0 || down["rsi_14"] > 100 {
		t.Fatalf("rsi=%v out of [0,100]", down["rsi_14"])
	}
	if down["rsi_14"] >= 30 {
		t.Fatalf("rsi=%v want <30 on monotone losses", down["rsi_14"])
	}
}

func TestTrendFlagsOnRisingSeries(t *testing.T) {
	eng := NewEngine(200)
	_, flags, err := eng.Compute(mkCandles(t, risingSeries(260, 100, 0.5)))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !flags.TrendBullish {
		t.Fatalf("TrendBullish=false on rising series")
	}
	if !flags.TrendLineBullish {
		t.Fatalf("TrendLineBullish=false on rising series")
	}
	if flags.BullishCount() < 2 {
		t.Fatalf("BullishCount=%d want >=2 on rising series", flags.BullishCount())
	}
}

func TestAvgRangeUsesHighLowSpan(t *testing.T) {
	eng := NewEngine(200)
	vec, _, err := eng.Compute(mkCandles(t, flatSeries(220, 100)))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// mkCandles builds bars with a constant high-low span of 2.
	if got := vec["atr_14d"]; math.Abs(got-2) > 1e-9 {
		t.Fatalf("atr_14d=%v want 2", got)
	}
}
