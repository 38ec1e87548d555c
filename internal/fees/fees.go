// Package fees implements the per-venue effective-price transform: turning a
// quoted price into the price actually paid once trading fees, gas, and
// withdrawal costs are folded in, and its algebraic inverse for sizing.
package fees

import (
	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

var tenThousand = decimal.NewFromInt(10000)

// Calculator computes effective prices and breakeven prices for one venue's
// FeeModel.
type Calculator struct {
	model types.FeeModel
}

// NewCalculator wraps a venue's fee model.
func NewCalculator(model types.FeeModel) *Calculator {
	return &Calculator{model: model}
}

// Model returns the underlying fee model.
func (c *Calculator) Model() types.FeeModel { return c.model }

// EstimateTradeCost returns the trading fee, gas, and withdrawal fee for a
// trade of qty at price, and their sum.
func (c *Calculator) EstimateTradeCost(price, qty decimal.Decimal, isMaker bool) (tradingFee, totalCost decimal.Decimal) {
	feeBps := c.model.TakerBps
	if isMaker {
		feeBps = c.model.MakerBps
	}
	tradingFee = price.Mul(qty).Mul(feeBps).Div(tenThousand)
	totalCost = tradingFee.Add(c.model.GasEstimateUSD).Add(c.model.WithdrawalFee)
	return tradingFee, totalCost
}

// CalculateEffectivePrice folds fees, gas, and withdrawal cost into a
// per-unit price adjustment. For BUY, the effective price is higher than the
// quote; for SELL, lower. The result is never negative.
func (c *Calculator) CalculateEffectivePrice(side types.OrderSide, price, qty decimal.Decimal, isMaker bool) decimal.Decimal {
	if qty.IsZero() {
		return price
	}
	_, totalCost := c.EstimateTradeCost(price, qty, isMaker)
	perUnit := totalCost.Div(qty)

	var effective decimal.Decimal
	if side == types.OrderBuy {
		effective = price.Add(perUnit)
	} else {
		effective = price.Sub(perUnit)
	}
	if effective.Sign() < 0 {
		return decimal.Zero
	}
	return effective
}

// CalculateBreakevenPrice inverse-solves CalculateEffectivePrice for the
// quoted price that would produce the given target effective price, at a
// fixed qty (fee and gas scale with qty, so breakeven is qty-dependent).
//
// For a BUY: effective = price + (price*qty*feeBps/10000 + gas + withdrawal)/qty
//
//	=> price * (1 + feeBps/10000) = effective - (gas+withdrawal)/qty
//	=> price = (effective - (gas+withdrawal)/qty) / (1 + feeBps/10000)
//
// For a SELL the trading-fee term has the opposite sign:
//
//	=> price * (1 - feeBps/10000) = effective + (gas+withdrawal)/qty
//	=> price = (effective + (gas+withdrawal)/qty) / (1 - feeBps/10000)
func (c *Calculator) CalculateBreakevenPrice(side types.OrderSide, targetEffective, qty decimal.Decimal, isMaker bool) decimal.Decimal {
	if qty.IsZero() {
		return targetEffective
	}
	feeBps := c.model.TakerBps
	if isMaker {
		feeBps = c.model.MakerBps
	}
	feeFraction := feeBps.Div(tenThousand)
	fixedPerUnit := c.model.GasEstimateUSD.Add(c.model.WithdrawalFee).Div(qty)

	if side == types.OrderBuy {
		denom := decimal.NewFromInt(1).Add(feeFraction)
		if denom.IsZero() {
			return targetEffective
		}
		return targetEffective.Sub(fixedPerUnit).Div(denom)
	}

	denom := decimal.NewFromInt(1).Sub(feeFraction)
	if denom.IsZero() {
		return targetEffective
	}
	return targetEffective.Add(fixedPerUnit).Div(denom)
}

// FeeSummary is a diagnostic snapshot of a venue's fee structure.
type FeeSummary struct {
	MakerBps       decimal.Decimal
	TakerBps       decimal.Decimal
	GasEstimateUSD decimal.Decimal
	WithdrawalFee  decimal.Decimal
}

// GetFeeSummary returns the venue's fee parameters for dashboards/logs.
func (c *Calculator) GetFeeSummary() FeeSummary {
	return FeeSummary{
		MakerBps:       c.model.MakerBps,
		TakerBps:       c.model.TakerBps,
		GasEstimateUSD: c.model.GasEstimateUSD,
		WithdrawalFee:  c.model.WithdrawalFee,
	}
}

// DefaultPolymarketFeeModel: zero maker fee, 25bps taker fee, $0.50 flat gas
// estimate, no withdrawal fee.
func DefaultPolymarketFeeModel() types.FeeModel {
	return types.FeeModel{
		MakerBps:       decimal.Zero,
		TakerBps:       decimal.NewFromInt(25),
		GasEstimateUSD: decimal.NewFromFloat(0.50),
		WithdrawalFee:  decimal.Zero,
	}
}

// DefaultKalshiFeeModel: zero maker fee, 30bps taker fee, no gas (centralized
// exchange), no withdrawal fee.
func DefaultKalshiFeeModel() types.FeeModel {
	return types.FeeModel{
		MakerBps:       decimal.Zero,
		TakerBps:       decimal.NewFromInt(30),
		GasEstimateUSD: decimal.Zero,
		WithdrawalFee:  decimal.Zero,
	}
}
