// Package sizing implements the Position Sizer's staircase transform:
// Kelly-fraction sizing successively narrowed by risk limits, balance
// constraints, and tick rounding.
package sizing

import (
	"github.com/shopspring/decimal"

	"arbbot/internal/odds"
	"arbbot/internal/types"
)

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

// Sizer computes position sizes for arbitrage opportunities.
type Sizer struct {
	limits         types.RiskLimits
	kellyMultiplier decimal.Decimal // configured multiplier applied after the 0.25 cap
	bankroll       decimal.Decimal
}

// New builds a Sizer. kellyMultiplier is the configured scalar applied after
// the hard 0.25 Kelly cap, letting an operator trade more conservatively
// than the cap alone would allow.
func New(limits types.RiskLimits, kellyMultiplier, bankroll decimal.Decimal) *Sizer {
	return &Sizer{limits: limits, kellyMultiplier: kellyMultiplier, bankroll: bankroll}
}

// UpdateBankroll replaces the available bankroll used for Kelly sizing.
func (s *Sizer) UpdateBankroll(newBankroll decimal.Decimal) {
	s.bankroll = newBankroll
}

// Summary breaks down every stage of the staircase, for diagnostics/tests.
type Summary struct {
	KellySize        decimal.Decimal
	RiskLimitedSize  decimal.Decimal
	BalanceLimitedSize decimal.Decimal
	FinalSize        decimal.Decimal
	Notional         decimal.Decimal
	EdgeBps          decimal.Decimal
	ExpectedPnL      decimal.Decimal
}

// CalculatePositionSize runs the full Kelly -> risk -> balance -> tick
// staircase and returns only the final size (use Summarize for the full
// breakdown).
func (s *Sizer) CalculatePositionSize(opp types.ArbOpportunity, balances map[types.Venue]types.Balance, existingEventExposureUSD, totalExposureUSD decimal.Decimal) decimal.Decimal {
	return s.Summarize(opp, balances, existingEventExposureUSD, totalExposureUSD).FinalSize
}

// Summarize runs the staircase and returns every intermediate value.
func (s *Sizer) Summarize(opp types.ArbOpportunity, balances map[types.Venue]types.Balance, existingEventExposureUSD, totalExposureUSD decimal.Decimal) Summary {
	kellySize := s.kellySize(opp)
	riskLimited := s.applyRiskLimits(kellySize, opp, existingEventExposureUSD, totalExposureUSD)
	balanceLimited := s.applyBalanceConstraints(riskLimited, opp, balances)
	final := roundToVenueTicks(balanceLimited)

	if final.Sign() < 0 {
		final = zero
	}

	return Summary{
		KellySize:          kellySize,
		RiskLimitedSize:    riskLimited,
		BalanceLimitedSize: balanceLimited,
		FinalSize:          final,
		Notional:           final.Mul(opp.Notional),
		EdgeBps:            opp.EdgeBps,
		ExpectedPnL:        final.Mul(opp.Notional).Mul(opp.EdgeBps).Div(decimal.NewFromInt(10000)),
	}
}

// kellySize = bankroll * min(edge_decimal, 0.25) * kelly_multiplier / opportunity.notional
func (s *Sizer) kellySize(opp types.ArbOpportunity) decimal.Decimal {
	if opp.Notional.IsZero() {
		return zero
	}
	kellyFraction := odds.KellyFraction(opp.EdgeBps)
	adjusted := kellyFraction.Mul(s.kellyMultiplier)
	return s.bankroll.Mul(adjusted).Div(opp.Notional)
}

// applyRiskLimits clips size by per-trade, per-event, and aggregate caps —
// each clip only ever narrows, never widens, the previous stage's size.
func (s *Sizer) applyRiskLimits(size decimal.Decimal, opp types.ArbOpportunity, existingEventExposureUSD, totalExposureUSD decimal.Decimal) decimal.Decimal {
	if opp.Notional.IsZero() {
		return zero
	}
	notional := size.Mul(opp.Notional)

	if notional.GreaterThan(s.limits.MaxPerTradeUSD) {
		size = s.limits.MaxPerTradeUSD.Div(opp.Notional)
		notional = size.Mul(opp.Notional)
	}

	if existingEventExposureUSD.Add(notional).GreaterThan(s.limits.MaxPositionPerEventUSD) {
		remaining := s.limits.MaxPositionPerEventUSD.Sub(existingEventExposureUSD)
		if remaining.Sign() > 0 {
			size = remaining.Div(opp.Notional)
			notional = size.Mul(opp.Notional)
		} else {
			return zero
		}
	}

	if totalExposureUSD.Add(notional).GreaterThan(s.limits.MaxOpenRiskUSD) {
		remaining := s.limits.MaxOpenRiskUSD.Sub(totalExposureUSD)
		if remaining.Sign() > 0 {
			size = remaining.Div(opp.Notional)
		} else {
			return zero
		}
	}

	return size
}

// applyBalanceConstraints clips size so neither leg's cost exceeds the
// available balance at its venue.
func (s *Sizer) applyBalanceConstraints(size decimal.Decimal, opp types.ArbOpportunity, balances map[types.Venue]types.Balance) decimal.Decimal {
	if size.Sign() <= 0 {
		return size
	}

	legACost := size.Mul(opp.LegA.Price)
	legBCost := size.Mul(opp.LegB.Price)

	if balA, ok := balances[opp.LegA.Venue]; ok && legACost.GreaterThan(balA.Available) && opp.LegA.Price.Sign() > 0 {
		size = balA.Available.Div(opp.LegA.Price)
	}
	legBCost = size.Mul(opp.LegB.Price)
	if balB, ok := balances[opp.LegB.Venue]; ok && legBCost.GreaterThan(balB.Available) && opp.LegB.Price.Sign() > 0 {
		candidate := balB.Available.Div(opp.LegB.Price)
		if candidate.LessThan(size) {
			size = candidate
		}
	}

	return size
}

// roundToVenueTicks rounds to the nearest whole unit with a floor of 1.0.
// Contract tick sizes are not applied here, and the execution engine does
// not apply them either.
func roundToVenueTicks(size decimal.Decimal) decimal.Decimal {
	if size.Sign() <= 0 {
		return zero
	}
	rounded := size.Round(0)
	if rounded.LessThan(one) {
		return one
	}
	return rounded
}
