package decision

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/features"
	"autotrader/internal/models"
)

var now = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func tptr(v time.Time) *time.Time { return &v }

func bullishFlags() features.Flags {
	return features.Flags{
		TrendBullish:     true,
		TrendLineBullish: true,
		BandOversold:     true,
	}
}

func openPosition(qty, entry, stop, take float64) *models.Position {
	return &models.Position{
		Symbol:     "SPY",
		Status:     "open",
		Quantity:   decimal.NewFromFloat(qty),
		EntryPrice: decimal.NewFromFloat(entry),
		StopLoss:   decimal.NewFromFloat(stop),
		TakeProfit: decimal.NewFromFloat(take),
	}
}

func TestDecideBuyWithConvergentSignals(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Symbol:       "SPY",
		Now:          now,
		Price:        100,
		Confidence:   fptr(0.75),
		Flags:        bullishFlags(),
		BuyThreshold: 0.6,
		EquityUSD:    10000,
	})
	if out.Action != ActionBuy {
		t.Fatalf("action=%s reason=%s want buy", out.Action, out.Reason)
	}
	// base 0.25 scaled by (0.75-0.5)*2 = 0.5.
	if got, want := out.SizeFraction, 0.125; got != want {
		t.Fatalf("fraction=%v want %v", got, want)
	}
	if got := out.Quantity; !got.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("quantity=%s want 12 (floor of 1250/100)", got)
	}
	if !out.StopLoss.Equal(decimal.NewFromFloat(95)) {
		t.Fatalf("stop=%s want 95", out.StopLoss)
	}
	if !out.TakeProfit.Equal(decimal.NewFromFloat(115)) {
		t.Fatalf("take=%s want 115", out.TakeProfit)
	}
}

func TestDecideHoldBelowAdaptiveThreshold(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Now:          now,
		Price:        100,
		Confidence:   fptr(0.65),
		Flags:        bullishFlags(),
		BuyThreshold: 0.7,
		EquityUSD:    10000,
	})
	if out.Action != ActionHold || out.Reason != ReasonLowConfidence {
		t.Fatalf("action=%s reason=%s want hold/low_confidence", out.Action, out.Reason)
	}
}

func TestDecideHoldOnWeakFlags(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Now:          now,
		Price:        100,
		Confidence:   fptr(0.8),
		Flags:        features.Flags{TrendBullish: true},
		BuyThreshold: 0.6,
		EquityUSD:    10000,
	})
	if out.Action != ActionHold || out.Reason != ReasonWeakFlags {
		t.Fatalf("action=%s reason=%s want hold/insufficient_flags", out.Action, out.Reason)
	}
}

func TestDecideCooldownBlocksEntry(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Now:          now,
		Price:        100,
		Confidence:   fptr(0.75),
		Flags:        bullishFlags(),
		BuyThreshold: 0.6,
		LastTradeAt:  tptr(now.Add(-10 * time.Minute)),
		EquityUSD:    10000,
	})
	if out.Action != ActionHold || out.Reason != ReasonCooldown {
		t.Fatalf("action=%s reason=%s want hold/cooldown", out.Action, out.Reason)
	}
}

func TestDecideCooldownExpires(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Now:          now,
		Price:        100,
		Confidence:   fptr(0.75),
		Flags:        bullishFlags(),
		BuyThreshold: 0.6,
		LastTradeAt:  tptr(now.Add(-2 * time.Hour)),
		EquityUSD:    10000,
	})
	if out.Action != ActionBuy {
		t.Fatalf("action=%s reason=%s want buy after cooldown expiry", out.Action, out.Reason)
	}
}

func TestDecideStopLossBypassesCooldown(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Now:         now,
		Price:       94,
		Confidence:  fptr(0.75),
		LastTradeAt: tptr(now.Add(-5 * time.Minute)),
		Position:    openPosition(10, 100, 95, 115),
	})
	if out.Action != ActionSell || out.Reason != ReasonStopLoss {
		t.Fatalf("action=%s reason=%s want sell/stop_loss", out.Action, out.Reason)
	}
	if !out.Forced {
		t.Fatalf("stop loss exit must be forced")
	}
	if !out.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("quantity=%s want full position", out.Quantity)
	}
}

func TestDecideTakeProfitWithoutModel(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Now:      now,
		Price:    120,
		Position: openPosition(10, 100, 95, 115),
	})
	if out.Action != ActionSell || out.Reason != ReasonTakeProfit {
		t.Fatalf("action=%s reason=%s want sell/take_profit", out.Action, out.Reason)
	}
	if !out.Forced {
		t.Fatalf("take profit exit must be forced")
	}
}

func TestDecideTechnicalEntryWithoutModel(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Now:          now,
		Price:        100,
		Flags:        bullishFlags(),
		BuyThreshold: 0.6,
		EquityUSD:    10000,
	})
	if out.Action != ActionBuy || out.Reason != ReasonTechnicalEntry {
		t.Fatalf("action=%s reason=%s want buy/technical_entry", out.Action, out.Reason)
	}
	// All three firing flags are bullish, so the pseudo-confidence is 1.0 and
	// the full base allocation applies: floor(10000*0.25/100) = 25 shares.
	if out.Confidence == nil || *out.Confidence != 1.0 {
		t.Fatalf("confidence=%v want 1.0", out.Confidence)
	}
	if got, want := out.SizeFraction, 0.25; got != want {
		t.Fatalf("fraction=%v want %v", got, want)
	}
	if !out.Quantity.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("quantity=%s want 25", out.Quantity)
	}
	if !out.StopLoss.Equal(decimal.NewFromFloat(95)) || !out.TakeProfit.Equal(decimal.NewFromFloat(115)) {
		t.Fatalf("stop=%s take=%s want 95/115", out.StopLoss, out.TakeProfit)
	}
}

func TestDecideTechnicalEntryScaledByBearishFlags(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Now:   now,
		Price: 100,
		Flags: features.Flags{
			TrendBullish:       true,
			OscillatorOversold: true,
			BandOverbought:     true,
		},
		EquityUSD: 10000,
	})
	if out.Action != ActionBuy || out.Reason != ReasonTechnicalEntry {
		t.Fatalf("action=%s reason=%s want buy/technical_entry", out.Action, out.Reason)
	}
	// Two bullish flags against one bearish: pseudo-confidence 2/3 shrinks
	// the allocation below the full base.
	if out.Confidence == nil || *out.Confidence >= 1.0 {
		t.Fatalf("confidence=%v want diluted below 1.0", out.Confidence)
	}
	if out.SizeFraction <= 0 || out.SizeFraction >= 0.25 {
		t.Fatalf("fraction=%v want in (0, 0.25)", out.SizeFraction)
	}
	if !out.Quantity.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("quantity=%s want 8", out.Quantity)
	}
}

func TestDecideTechnicalHoldWithoutTrend(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		name  string
		flags features.Flags
	}{
		{"trend broken", features.Flags{TrendLineBullish: true, OscillatorOversold: true}},
		{"trend alone", features.Flags{TrendBullish: true}},
	}
	for _, tc := range cases {
		out := p.Decide(Input{
			Now:       now,
			Price:     100,
			Flags:     tc.flags,
			EquityUSD: 10000,
		})
		if out.Action != ActionHold || out.Reason != ReasonWeakFlags {
			t.Fatalf("%s: action=%s reason=%s want hold/insufficient_flags", tc.name, out.Action, out.Reason)
		}
	}
}

func TestDecideTechnicalExitWithoutModel(t *testing.T) {
	p := DefaultPolicy()
	pos := openPosition(10, 100, 90, 130)

	cases := []struct {
		name   string
		flags  features.Flags
		action Action
		reason string
	}{
		{"trend broken", features.Flags{}, ActionSell, ReasonTechnicalExit},
		{"overbought oscillator", features.Flags{TrendBullish: true, OscillatorOverbought: true}, ActionSell, ReasonTechnicalExit},
		{"trend intact", features.Flags{TrendBullish: true}, ActionHold, ReasonHoldingPosition},
	}
	for _, tc := range cases {
		out := p.Decide(Input{
			Now:      now,
			Price:    105,
			Flags:    tc.flags,
			Position: pos,
		})
		if out.Action != tc.action || out.Reason != tc.reason {
			t.Fatalf("%s: action=%s reason=%s want %s/%s", tc.name, out.Action, out.Reason, tc.action, tc.reason)
		}
		if out.Action == ActionSell && out.Forced {
			t.Fatalf("%s: technical exit must not be forced", tc.name)
		}
	}
}

func TestDecideSellRules(t *testing.T) {
	p := DefaultPolicy()
	pos := openPosition(10, 100, 90, 130)

	cases := []struct {
		name   string
		conf   float64
		flags  features.Flags
		action Action
	}{
		{"below primary threshold", 0.39, features.Flags{}, ActionSell},
		{"secondary with overbought oscillator", 0.44, features.Flags{OscillatorOverbought: true}, ActionSell},
		{"secondary without overbought", 0.44, features.Flags{}, ActionHold},
		{"band overbought under half", 0.48, features.Flags{BandOverbought: true}, ActionSell},
		{"band overbought above half", 0.55, features.Flags{BandOverbought: true}, ActionHold},
	}
	for _, tc := range cases {
		out := p.Decide(Input{
			Now:        now,
			Price:      105,
			Confidence: fptr(tc.conf),
			Flags:      tc.flags,
			Position:   pos,
		})
		if out.Action != tc.action {
			t.Fatalf("%s: action=%s reason=%s want %s", tc.name, out.Action, out.Reason, tc.action)
		}
		if tc.action == ActionSell && out.Forced {
			t.Fatalf("%s: signal sell must not be forced", tc.name)
		}
	}
}

func TestDecideZeroQuantityNeverOrders(t *testing.T) {
	p := DefaultPolicy()
	out := p.Decide(Input{
		Now:          now,
		Price:        5000,
		Confidence:   fptr(0.61),
		Flags:        bullishFlags(),
		BuyThreshold: 0.6,
		EquityUSD:    1000,
	})
	// 1000 * 0.25 * 0.22 / 5000 floors to zero shares.
	if out.Action != ActionHold || out.Reason != ReasonZeroSize {
		t.Fatalf("action=%s reason=%s want hold/zero_size", out.Action, out.Reason)
	}
}

func TestSizeFractionShape(t *testing.T) {
	base := 0.25
	if got := SizeFraction(base, 0.5); got != 0 {
		t.Fatalf("fraction(0.5)=%v want 0", got)
	}
	if got := SizeFraction(base, 0.3); got != 0 {
		t.Fatalf("fraction(0.3)=%v want 0", got)
	}
	if got := SizeFraction(base, 1.0); got != base {
		t.Fatalf("fraction(1.0)=%v want %v", got, base)
	}
	prev := -1.0
	for conf := 0.5; conf <= 1.0; conf += 0.05 {
		got := SizeFraction(base, conf)
		if got < prev {
			t.Fatalf("fraction not monotone at conf=%v: %v < %v", conf, got, prev)
		}
		prev = got
	}
}
