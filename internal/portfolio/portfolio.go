// Package portfolio tracks positions and the trade ledger: a double-keyed
// (event_id, venue) position book, weighted-average-price accumulation, and
// mark-to-market valuation. Each leg's ContractSide is read directly off
// types.Trade.ContractSideA/ContractSideB rather than assumed from which
// venue placed the order, so a trade booked against either venue on either
// side still lands in the right YES/NO bucket.
package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

// positionKey identifies one position slot.
type positionKey struct {
	eventID string
	venue   types.Venue
}

// Portfolio owns the position book and the append-only trade ledger.
type Portfolio struct {
	mu             sync.RWMutex
	positions      map[positionKey]*types.Position
	trades         []types.Trade
	initialBalance decimal.Decimal
	currentBalance decimal.Decimal
}

// New returns an empty Portfolio seeded with initialBalance. currentBalance
// starts equal to initialBalance and is incremented by every trade's PnL as
// it is recorded.
func New(initialBalance decimal.Decimal) *Portfolio {
	return &Portfolio{
		positions:      make(map[positionKey]*types.Position),
		initialBalance: initialBalance,
		currentBalance: initialBalance,
	}
}

// AddTrade appends the trade to the ledger, increments the running balance
// by the trade's PnL, and updates both legs' positions using
// weighted-average-price accumulation. Only terminal, non-failed trades move
// the position book; pending/partial trades are recorded in the ledger for
// audit but do not touch positions until they reach a terminal state via a
// subsequent AddTrade call with an updated Status.
func (p *Portfolio) AddTrade(trade types.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.trades = append(p.trades, trade)
	p.currentBalance = p.currentBalance.Add(trade.PnL)

	if !trade.Status.Terminal() || trade.Status == types.TradeFailed || trade.Status == types.TradeCancelled {
		return nil
	}

	p.applyFill(trade.EventID, trade.VenueA, trade.ContractA, trade.ContractSideA, trade.Qty, trade.PriceA)

	// A hedged trade's B leg never filled; only the A-leg hedge-unwind
	// touches the book, which AddTrade's caller represents by re-submitting
	// the hedge as its own trade rather than mutating this one. The whole
	// trade's PnL is attributed to the A leg since it's the only position
	// this trade actually touched.
	if trade.Status == types.TradeHedged {
		p.attributeRealizedPnL(trade.EventID, trade.VenueA, trade.PnL)
		return nil
	}

	if trade.ContractB == "" {
		return fmt.Errorf("portfolio: trade %s is not failed/cancelled but has no B leg", trade.TradeID)
	}
	p.applyFill(trade.EventID, trade.VenueB, trade.ContractB, trade.ContractSideB, trade.Qty, trade.PriceB)

	half := trade.PnL.Div(decimal.NewFromInt(2))
	p.attributeRealizedPnL(trade.EventID, trade.VenueA, half)
	p.attributeRealizedPnL(trade.EventID, trade.VenueB, half)
	return nil
}

// attributeRealizedPnL credits amount to the named position's RealizedPnL,
// if that position exists. Caller must hold p.mu.
func (p *Portfolio) attributeRealizedPnL(eventID string, venue types.Venue, amount decimal.Decimal) {
	if pos, ok := p.positions[positionKey{eventID: eventID, venue: venue}]; ok {
		pos.RealizedPnL = pos.RealizedPnL.Add(amount)
	}
}

// applyFill folds one leg's fill into its position using weighted-average
// price: new_avg = (old_qty*old_avg + fill_qty*fill_price) / (old_qty + fill_qty).
func (p *Portfolio) applyFill(eventID string, venue types.Venue, contractID string, side types.ContractSide, qty, price decimal.Decimal) {
	key := positionKey{eventID: eventID, venue: venue}
	now := time.Now().UTC()

	pos, ok := p.positions[key]
	if !ok {
		p.positions[key] = &types.Position{
			Venue:             venue,
			ContractID:        contractID,
			NormalizedEventID: eventID,
			Side:              side,
			Qty:               qty,
			AvgPrice:          price,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return
	}

	totalQty := pos.Qty.Add(qty)
	if totalQty.IsZero() {
		pos.Qty = decimal.Zero
		pos.AvgPrice = decimal.Zero
	} else {
		weighted := pos.Qty.Mul(pos.AvgPrice).Add(qty.Mul(price))
		pos.AvgPrice = weighted.Div(totalQty)
		pos.Qty = totalQty
	}
	pos.UpdatedAt = now
}

// Position returns the position for (eventID, venue), if any.
func (p *Portfolio) Position(eventID string, venue types.Venue) (types.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[positionKey{eventID: eventID, venue: venue}]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// PositionsForEvent returns every venue's position in the given event.
func (p *Portfolio) PositionsForEvent(eventID string) []types.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.Position
	for key, pos := range p.positions {
		if key.eventID == eventID {
			out = append(out, *pos)
		}
	}
	return out
}

// AllPositions returns every tracked position.
func (p *Portfolio) AllPositions() []types.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out
}

// Trades returns a copy of the append-only ledger.
func (p *Portfolio) Trades() []types.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// MarkToMarket recomputes UnrealizedPnL for every position using the
// supplied mark price, keyed by the position's ContractID. Positions with no mark
// available are left unchanged. YES positions gain as the mark rises above
// AvgPrice; NO positions gain as it falls, since a NO holder profits when the
// underlying price moves down.
func (p *Portfolio) MarkToMarket(marks map[string]decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pos := range p.positions {
		mark, ok := marks[pos.ContractID]
		if !ok || pos.Qty.IsZero() {
			continue
		}
		diff := mark.Sub(pos.AvgPrice)
		if pos.Side == types.SideNo {
			diff = diff.Neg()
		}
		pos.UnrealizedPnL = diff.Mul(pos.Qty)
		pos.UpdatedAt = time.Now().UTC()
	}
}

// Summary is the portfolio-wide snapshot surfaced by the dashboard and
// engine loop.
type Summary struct {
	TotalPositions     int
	InitialBalance     decimal.Decimal
	CurrentBalance     decimal.Decimal
	TotalRealizedPnL   decimal.Decimal
	TotalUnrealizedPnL decimal.Decimal
	TotalExposureUSD   decimal.Decimal
	TradeCount         int
	FilledTradeCount   int
	HedgedTradeCount   int
	FailedTradeCount   int
	WinRate            float64 // percentage, 0-100
}

// GetPortfolioSummary aggregates balance, realized/unrealized PnL, exposure,
// trade counts, and the win rate (share of trades with positive PnL).
func (p *Portfolio) GetPortfolioSummary() Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary := Summary{
		TotalPositions: len(p.positions),
		InitialBalance: p.initialBalance,
		CurrentBalance: p.currentBalance,
		TradeCount:     len(p.trades),
	}
	for _, pos := range p.positions {
		summary.TotalRealizedPnL = summary.TotalRealizedPnL.Add(pos.RealizedPnL)
		summary.TotalUnrealizedPnL = summary.TotalUnrealizedPnL.Add(pos.UnrealizedPnL)
		summary.TotalExposureUSD = summary.TotalExposureUSD.Add(pos.Qty.Mul(pos.AvgPrice))
	}

	successful := 0
	for _, t := range p.trades {
		switch t.Status {
		case types.TradeFilled:
			summary.FilledTradeCount++
		case types.TradeHedged:
			summary.HedgedTradeCount++
		case types.TradeFailed:
			summary.FailedTradeCount++
		}
		if t.PnL.Sign() > 0 {
			successful++
		}
	}
	if summary.TradeCount > 0 {
		summary.WinRate = float64(successful) / float64(summary.TradeCount) * 100
	}
	return summary
}

// EventExposureUSD sums the USD notional (qty*avg_price) committed across
// both venues' positions in an event, for the risk manager's per-event cap.
func (p *Portfolio) EventExposureUSD(eventID string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := decimal.Zero
	for key, pos := range p.positions {
		if key.eventID == eventID {
			total = total.Add(pos.Qty.Mul(pos.AvgPrice))
		}
	}
	return total
}

// TotalExposureUSD sums USD notional across every tracked position, for the
// risk manager's aggregate open-risk cap.
func (p *Portfolio) TotalExposureUSD() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := decimal.Zero
	for _, pos := range p.positions {
		total = total.Add(pos.Qty.Mul(pos.AvgPrice))
	}
	return total
}
