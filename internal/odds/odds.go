// Package odds implements the primitive price/probability/edge arithmetic
// shared by discovery and sizing. All money and probability
// values are decimal.Decimal, never float64, so bps arithmetic never drifts.
package odds

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	hundred     = decimal.NewFromInt(100)
	tenThousand = decimal.NewFromInt(10000)
	one         = decimal.NewFromInt(1)
	zero        = decimal.Zero
)

// PriceToProbabilityYes returns the implied YES probability of a price.
func PriceToProbabilityYes(price decimal.Decimal) decimal.Decimal {
	return price
}

// PriceToProbabilityNo returns the implied NO probability of a price.
func PriceToProbabilityNo(price decimal.Decimal) decimal.Decimal {
	return one.Sub(price)
}

// ProbabilityToPrice is the inverse of PriceToProbabilityYes; price and
// probability share the same [0,1] convention so this is the identity.
func ProbabilityToPrice(probability decimal.Decimal) decimal.Decimal {
	return probability
}

// CalculateSpreadBps returns the bid/ask spread in basis points of the mid.
func CalculateSpreadBps(bid, ask decimal.Decimal) decimal.Decimal {
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return zero
	}
	return ask.Sub(bid).Div(mid).Mul(tenThousand)
}

// CalculateLiquidityScore is a simple proxy: min(bid_size, ask_size).
func CalculateLiquidityScore(bidSize, askSize decimal.Decimal) decimal.Decimal {
	if bidSize.LessThan(askSize) {
		return bidSize
	}
	return askSize
}

// RoundToTick rounds price to the nearest multiple of tick. A non-positive
// tick is treated as "no rounding" (identity).
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return price
	}
	quotient := price.Div(tick).Round(0)
	return quotient.Mul(tick)
}

// CalculateEdgeBps returns a single direction's arbitrage edge in basis
// points: max(0, 1 - (askYes+askNo) - totalCosts) * 10000. Use this when the
// caller already knows which direction it is pricing and has real ask
// prices for both legs of that direction only — CalculateArbitrageEdge's
// two-direction comparison is the wrong tool when the other direction's legs
// aren't actually known, since feeding it zeros for an unpriced direction
// makes that direction's edge look artificially perfect.
func CalculateEdgeBps(askYes, askNo, totalCosts decimal.Decimal) decimal.Decimal {
	legSum := askYes.Add(askNo)
	edge := one.Sub(legSum).Sub(totalCosts).Mul(tenThousand)
	if edge.Sign() < 0 {
		return zero
	}
	return edge
}

// CalculateArbitrageEdge returns the best of the two directional edges in
// basis points, plus the rationale identifying the winning direction.
//
//	edge1 (YES@A+NO@B) = max(0, 1 - (askYesA+askNoB) - totalCosts) * 10000
//	edge2 (NO@A+YES@B) = max(0, 1 - (askNoA+askYesB) - totalCosts) * 10000
//
// It returns whichever of the two computed edges is larger (edge1 on a tie).
// Both pairs of legs must be real asks: a zero-priced pair scores close to
// 10000 bps and wins the comparison (use CalculateEdgeBps for one direction).
func CalculateArbitrageEdge(askYesA, askNoB, askNoA, askYesB, totalCosts decimal.Decimal) (edgeBps decimal.Decimal, legSum decimal.Decimal, rationale string) {
	legSum1 := askYesA.Add(askNoB)
	edge1 := one.Sub(legSum1).Sub(totalCosts).Mul(tenThousand)
	if edge1.Sign() < 0 {
		edge1 = zero
	}

	legSum2 := askNoA.Add(askYesB)
	edge2 := one.Sub(legSum2).Sub(totalCosts).Mul(tenThousand)
	if edge2.Sign() < 0 {
		edge2 = zero
	}

	if edge1.GreaterThanOrEqual(edge2) {
		return edge1, legSum1, "YES@A+NO@B"
	}
	return edge2, legSum2, "NO@A+YES@B"
}

// MinExecutableQty returns the largest quantity executable within the
// capital cap and both legs' displayed size, or zero if the two legs' prices
// sum to zero.
func MinExecutableQty(sizeYes, sizeNo, capitalCap, priceYes, priceNo decimal.Decimal) decimal.Decimal {
	denom := priceYes.Add(priceNo)
	if denom.IsZero() {
		return zero
	}
	byCapital := capitalCap.Div(denom)

	qty := byCapital
	if sizeYes.LessThan(qty) {
		qty = sizeYes
	}
	if sizeNo.LessThan(qty) {
		qty = sizeNo
	}
	if qty.Sign() < 0 {
		return zero
	}
	return qty
}

// CalculateBreakevenProbability returns the probability at which a position
// of the given edge neither profits nor loses, used by sizing diagnostics.
func CalculateBreakevenProbability(edgeBps decimal.Decimal) decimal.Decimal {
	return one.Sub(edgeBps.Div(tenThousand)).Div(decimal.NewFromInt(2))
}

// IsArbitrageProfitable reports whether an opportunity clears both the edge
// and notional admission gates.
func IsArbitrageProfitable(edgeBps, minEdgeBps, notional, minNotional decimal.Decimal) bool {
	return edgeBps.GreaterThanOrEqual(minEdgeBps) && notional.GreaterThanOrEqual(minNotional)
}

// CalculateExpectedPnL is qty * edge_bps/10000, the guaranteed payoff absent
// fees (fees are already baked into edgeBps when computed from effective
// prices).
func CalculateExpectedPnL(qty, edgeBps decimal.Decimal) decimal.Decimal {
	return qty.Mul(edgeBps).Div(tenThousand)
}

// KellyFraction returns clamp(edgeBps/10000, 0, 0.25): the guaranteed
// arbitrage edge used directly as the stake fraction, capped at 0.25. It
// takes no win probability and does not evaluate the textbook
// (b*p - q)/b formula, which assumes a coin-flip payout and yields zero for
// a riskless edge.
func KellyFraction(edgeBps decimal.Decimal) decimal.Decimal {
	edgeDecimal := edgeBps.Div(tenThousand)
	kellyCap := decimal.NewFromFloat(0.25)
	if edgeDecimal.LessThan(zero) {
		return zero
	}
	if edgeDecimal.GreaterThan(kellyCap) {
		return kellyCap
	}
	return edgeDecimal
}

// Rationale builds a human-readable summary for logs and the dashboard.
func Rationale(direction string, edgeBps decimal.Decimal) string {
	return fmt.Sprintf("%s edge=%sbps", direction, edgeBps.StringFixed(2))
}
