package decision

import (
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/features"
	"autotrader/internal/models"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Hold and exit reasons recorded in the decision audit log.
const (
	ReasonEntry           = "entry_signal"
	ReasonExitSignal      = "exit_signal"
	ReasonStopLoss        = "stop_loss"
	ReasonTakeProfit      = "take_profit"
	ReasonCooldown        = "cooldown"
	ReasonTechnicalEntry  = "technical_entry"
	ReasonTechnicalExit   = "technical_exit"
	ReasonLowConfidence   = "low_confidence"
	ReasonWeakFlags       = "insufficient_flags"
	ReasonZeroSize        = "zero_size"
	ReasonHoldingPosition = "holding_position"
	ReasonNoSignal        = "no_signal"
	ReasonInvalidPrice    = "invalid_price"
)

// Policy holds the static decision parameters. The buy threshold is adaptive
// per symbol and arrives with each Input instead.
type Policy struct {
	SellThreshold    float64
	SecondarySell    float64
	MinBullishFlags  int
	BaseAllocation   float64
	StopLossPct      float64
	TakeProfitPct    float64
	MinTradeInterval time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		SellThreshold:    0.4,
		SecondarySell:    0.45,
		MinBullishFlags:  2,
		BaseAllocation:   0.25,
		StopLossPct:      0.05,
		TakeProfitPct:    0.15,
		MinTradeInterval: time.Hour,
	}
}

type Input struct {
	Symbol string
	Now    time.Time
	Price  float64

	// Confidence is nil when no model is available; the policy then falls
	// back to flag-only entries and exits.
	Confidence   *float64
	ModelVersion int
	Flags        features.Flags

	BuyThreshold float64
	LastTradeAt  *time.Time
	Position     *models.Position
	EquityUSD    float64
}

type Decision struct {
	Action       Action
	Reason       string
	Confidence   *float64
	ModelVersion int

	SizeFraction float64
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	StopLoss     decimal.Decimal
	TakeProfit   decimal.Decimal

	// Forced marks protective exits that bypass cooldown.
	Forced bool
}

// SizeFraction maps confidence into an allocation fraction of the base
// allocation: zero at or below 0.5, the full base at 1.0.
func SizeFraction(base, confidence float64) float64 {
	mult := (confidence - 0.5) * 2
	if mult < 0 {
		mult = 0
	}
	if mult > 1 {
		mult = 1
	}
	return base * mult
}

// Decide is pure: one input, one decision, no I/O.
func (p Policy) Decide(in Input) Decision {
	out := Decision{
		Action:       ActionHold,
		Reason:       ReasonNoSignal,
		Confidence:   in.Confidence,
		ModelVersion: in.ModelVersion,
	}
	if in.Price <= 0 {
		out.Reason = ReasonInvalidPrice
		return out
	}
	price := decimal.NewFromFloat(in.Price)

	// Protective exits come first and ignore both cooldown and model state.
	if in.Position != nil && in.Position.Status == "open" {
		if in.Position.StopLoss.IsPositive() && price.LessThanOrEqual(in.Position.StopLoss) {
			return p.exit(in, price, ReasonStopLoss, true)
		}
		if in.Position.TakeProfit.IsPositive() && price.GreaterThanOrEqual(in.Position.TakeProfit) {
			return p.exit(in, price, ReasonTakeProfit, true)
		}
	}

	if in.LastTradeAt != nil && p.MinTradeInterval > 0 {
		if in.Now.Sub(*in.LastTradeAt) < p.MinTradeInterval {
			out.Reason = ReasonCooldown
			return out
		}
	}

	if in.Confidence == nil {
		return p.decideTechnical(in, price)
	}
	conf := *in.Confidence

	if in.Position != nil && in.Position.Status == "open" {
		if p.shouldSell(conf, in.Flags) {
			return p.exit(in, price, ReasonExitSignal, false)
		}
		out.Reason = ReasonHoldingPosition
		return out
	}

	if conf <= in.BuyThreshold {
		out.Reason = ReasonLowConfidence
		return out
	}
	if in.Flags.BullishCount() < p.MinBullishFlags {
		out.Reason = ReasonWeakFlags
		return out
	}

	fraction := SizeFraction(p.BaseAllocation, conf)
	if fraction <= 0 {
		out.Reason = ReasonZeroSize
		return out
	}
	quantity := decimal.NewFromFloat(in.EquityUSD * fraction).Div(price).Floor()
	if quantity.LessThanOrEqual(decimal.Zero) {
		out.Reason = ReasonZeroSize
		return out
	}

	out.Action = ActionBuy
	out.Reason = ReasonEntry
	out.SizeFraction = fraction
	out.Quantity = quantity
	out.Price = price
	out.StopLoss = price.Mul(decimal.NewFromFloat(1 - p.StopLossPct))
	out.TakeProfit = price.Mul(decimal.NewFromFloat(1 + p.TakeProfitPct))
	return out
}

// decideTechnical handles the no-model state: the indicator flags alone drive
// entries and exits. BUY needs the trend plus either a bullish trend line or
// an oversold oscillator; SELL fires on a broken trend or an overbought
// oscillator. Sizing uses the bullish share of the firing flags as a
// pseudo-confidence.
func (p Policy) decideTechnical(in Input, price decimal.Decimal) Decision {
	out := Decision{Action: ActionHold, Reason: ReasonNoSignal}

	if in.Position != nil && in.Position.Status == "open" {
		if !in.Flags.TrendBullish || in.Flags.OscillatorOverbought {
			return p.exit(in, price, ReasonTechnicalExit, false)
		}
		out.Reason = ReasonHoldingPosition
		return out
	}

	if !in.Flags.TrendBullish || (!in.Flags.TrendLineBullish && !in.Flags.OscillatorOversold) {
		out.Reason = ReasonWeakFlags
		return out
	}

	pseudo := 0.5
	if total := in.Flags.BullishCount() + in.Flags.BearishCount(); total > 0 {
		pseudo = float64(in.Flags.BullishCount()) / float64(total)
	}
	fraction := SizeFraction(p.BaseAllocation, pseudo)
	if fraction <= 0 {
		out.Reason = ReasonZeroSize
		return out
	}
	quantity := decimal.NewFromFloat(in.EquityUSD * fraction).Div(price).Floor()
	if quantity.LessThanOrEqual(decimal.Zero) {
		out.Reason = ReasonZeroSize
		return out
	}

	out.Action = ActionBuy
	out.Reason = ReasonTechnicalEntry
	out.Confidence = &pseudo
	out.SizeFraction = fraction
	out.Quantity = quantity
	out.Price = price
	out.StopLoss = price.Mul(decimal.NewFromFloat(1 - p.StopLossPct))
	out.TakeProfit = price.Mul(decimal.NewFromFloat(1 + p.TakeProfitPct))
	return out
}

func (p Policy) shouldSell(conf float64, flags features.Flags) bool {
	if conf < p.SellThreshold {
		return true
	}
	if conf < p.SecondarySell && flags.OscillatorOverbought {
		return true
	}
	if conf < 0.5 && flags.BandOverbought {
		return true
	}
	return false
}

func (p Policy) exit(in Input, price decimal.Decimal, reason string, forced bool) Decision {
	return Decision{
		Action:       ActionSell,
		Reason:       reason,
		Confidence:   in.Confidence,
		ModelVersion: in.ModelVersion,
		Quantity:     in.Position.Quantity,
		Price:        price,
		Forced:       forced,
	}
}
