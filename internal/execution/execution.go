// Package execution implements the atomic two-legged trade placer: order
// placement with retry, less-liquid-leg-first ordering, partial-fill
// hedging, and the Trade state machine.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

// VenueClient is the external collaborator capability consumed by both
// discovery and execution. Implementations live in internal/exchange.
type VenueClient interface {
	Venue() types.Venue
	ListContracts(ctx context.Context) ([]types.Contract, error)
	GetQuotes(ctx context.Context, contractIDs []string) ([]types.Quote, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Fill, error)
	CancelOrder(ctx context.Context, venueOrderID string) (bool, error)
	GetBalance(ctx context.Context) (map[string]types.Balance, error)
	Healthcheck(ctx context.Context) bool
}

// LiquidityEstimator estimates a contract's book depth for leg ordering.
// The default implementation returns a constant; real deployments may plug
// a venue-specific book-depth lookup instead.
type LiquidityEstimator interface {
	EstimateLiquidity(ctx context.Context, venue types.Venue, contractID string) decimal.Decimal
}

// ConstantLiquidityEstimator always returns the same estimate, a stand-in
// for venues that don't expose a cheap book-depth query.
type ConstantLiquidityEstimator struct {
	Value decimal.Decimal
}

// EstimateLiquidity implements LiquidityEstimator.
func (c ConstantLiquidityEstimator) EstimateLiquidity(context.Context, types.Venue, string) decimal.Decimal {
	return c.Value
}

// DefaultLiquidityEstimator returns a constant estimate of 1000 units,
// the fallback used until a venue-specific estimator is wired in.
func DefaultLiquidityEstimator() LiquidityEstimator {
	return ConstantLiquidityEstimator{Value: decimal.NewFromInt(1000)}
}

// Config holds the retry policy.
type Config struct {
	MaxRetries int           // default 3
	RetryDelay time.Duration // default 100ms
}

// DefaultConfig returns the default retry policy: 3 retries after the first
// attempt (4 attempts in all), 100ms apart.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryDelay: 100 * time.Millisecond}
}

// Engine places two-legged trades and manages the resulting Trade state
// machine.
type Engine struct {
	cfg       Config
	liquidity LiquidityEstimator
	logger    *slog.Logger
	clients   map[types.Venue]VenueClient
}

// New builds an Engine. clients maps venue -> VenueClient for every venue
// this engine may trade on.
func New(cfg Config, clients map[types.Venue]VenueClient, liquidity LiquidityEstimator, logger *slog.Logger) *Engine {
	if liquidity == nil {
		liquidity = DefaultLiquidityEstimator()
	}
	return &Engine{cfg: cfg, clients: clients, liquidity: liquidity, logger: logger}
}

// Execute places both legs of an opportunity at the given size, returning
// the resulting Trade. Trade is never nil; its Status records the outcome.
func (e *Engine) Execute(ctx context.Context, opp types.ArbOpportunity, size decimal.Decimal) (*types.Trade, error) {
	trade := &types.Trade{
		TradeID:       uuid.NewString(),
		EventID:       opp.EventID,
		VenueA:        opp.LegA.Venue,
		VenueB:        opp.LegB.Venue,
		ContractA:     opp.LegA.ContractID,
		ContractB:     opp.LegB.ContractID,
		SideA:         opp.LegA.Side,
		SideB:         opp.LegB.Side,
		ContractSideA: opp.SideA,
		ContractSideB: opp.SideB,
		Qty:           size,
		PriceA:        opp.LegA.Price,
		PriceB:        opp.LegB.Price,
		EdgeBps:       opp.EdgeBps,
		Status:        types.TradePending,
		CreatedAt:     time.Now().UTC(),
	}

	first, second, firstReq, secondReq := e.orderLegsByLiquidity(ctx, opp)

	firstFill, err := e.placeWithRetry(ctx, first, firstReq)
	if err != nil {
		trade.Status = types.TradeFailed
		e.logger.Warn("execution: first leg failed after retries", "trade_id", trade.TradeID, "venue", first.Venue(), "error", err)
		return trade, nil
	}
	applyFill(trade, firstReq.Venue, opp, firstFill)

	secondFill, err := e.placeWithRetry(ctx, second, secondReq)
	if err != nil {
		// Caller may invoke HedgePartialFill with firstFill; the trade is
		// left partial (non-terminal) so the caller can decide to hedge or
		// cancel.
		trade.Status = types.TradePartial
		e.logger.Warn("execution: second leg failed after retries, partial fill outstanding", "trade_id", trade.TradeID, "venue", second.Venue(), "error", err)
		return trade, fmt.Errorf("execution: second leg failed: %w", err)
	}
	applyFill(trade, secondReq.Venue, opp, secondFill)

	now := time.Now().UTC()
	trade.FeeA = feeForVenue(trade, trade.VenueA, firstFill, secondFill)
	trade.FeeB = feeForVenue(trade, trade.VenueB, firstFill, secondFill)
	trade.Status = types.TradeFilled
	trade.FilledAt = &now
	trade.PnL = calculateTradePnL(trade)

	return trade, nil
}

func applyFill(trade *types.Trade, venue types.Venue, opp types.ArbOpportunity, fill *types.Fill) {
	if venue == opp.LegA.Venue {
		trade.PriceA = fill.AvgPrice
	} else {
		trade.PriceB = fill.AvgPrice
	}
}

func feeForVenue(trade *types.Trade, venue types.Venue, firstFill, secondFill *types.Fill) decimal.Decimal {
	for _, f := range []*types.Fill{firstFill, secondFill} {
		if f != nil && f.Venue == venue {
			return f.FeePaid
		}
	}
	return decimal.Zero
}

// calculateTradePnL = qty * edge_bps/10000 - (fee_a + fee_b).
func calculateTradePnL(trade *types.Trade) decimal.Decimal {
	gross := trade.Qty.Mul(trade.EdgeBps).Div(decimal.NewFromInt(10000))
	return gross.Sub(trade.FeeA).Sub(trade.FeeB)
}

// orderLegsByLiquidity returns (lessLiquidClient, moreLiquidClient, lessLiquidReq, moreLiquidReq).
func (e *Engine) orderLegsByLiquidity(ctx context.Context, opp types.ArbOpportunity) (first, second VenueClient, firstReq, secondReq types.OrderRequest) {
	liqA := e.liquidity.EstimateLiquidity(ctx, opp.LegA.Venue, opp.LegA.ContractID)
	liqB := e.liquidity.EstimateLiquidity(ctx, opp.LegB.Venue, opp.LegB.ContractID)

	if liqA.LessThanOrEqual(liqB) {
		return e.clients[opp.LegA.Venue], e.clients[opp.LegB.Venue], opp.LegA, opp.LegB
	}
	return e.clients[opp.LegB.Venue], e.clients[opp.LegA.Venue], opp.LegB, opp.LegA
}

// placeWithRetry retries PlaceOrder up to cfg.MaxRetries times, waiting
// cfg.RetryDelay between attempts.
func (e *Engine) placeWithRetry(ctx context.Context, client VenueClient, req types.OrderRequest) (*types.Fill, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		fill, err := client.PlaceOrder(ctx, req)
		if err == nil {
			return fill, nil
		}
		lastErr = err
		if attempt < e.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.cfg.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("place_order failed after %d retries: %w", e.cfg.MaxRetries, lastErr)
}

// HedgePartialFill unwinds the leg that did fill: it places an IOC order on
// the opposite side of firstFill, at firstFill's venue and contract, sized to
// the quantity already filled, and marks the Trade hedged.
func (e *Engine) HedgePartialFill(ctx context.Context, trade *types.Trade, firstFill *types.Fill) error {
	client, ok := e.clients[firstFill.Venue]
	if !ok {
		return fmt.Errorf("execution: no venue client for hedge venue %s", firstFill.Venue)
	}

	req := types.OrderRequest{
		Venue:         firstFill.Venue,
		ContractID:    firstFill.ContractID,
		Side:          oppositeSide(firstFill.Side),
		Qty:           firstFill.Qty,
		TIF:           types.TIFIOC,
		ClientOrderID: uuid.NewString(),
	}

	fill, err := client.PlaceOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("execution: hedge order failed: %w", err)
	}

	trade.HedgeFill = fill
	trade.Status = types.TradeHedged
	return nil
}

func oppositeSide(s types.OrderSide) types.OrderSide {
	if s == types.OrderBuy {
		return types.OrderSell
	}
	return types.OrderBuy
}

// CancelTrade attempts to cancel both legs' resting orders, best-effort,
// for operator-triggered cleanup after the fact. Trade is marked cancelled
// only if it was not yet in a terminal state (pending or partial).
func (e *Engine) CancelTrade(ctx context.Context, trade *types.Trade, venueOrderIDs ...string) {
	if trade.Status.Terminal() {
		return
	}
	for venue, client := range e.clients {
		for _, id := range venueOrderIDs {
			if id == "" {
				continue
			}
			if ok, err := client.CancelOrder(ctx, id); err != nil || !ok {
				e.logger.Debug("execution: cancel attempt did not confirm", "venue", venue, "order_id", id, "error", err)
			}
		}
	}
	trade.Status = types.TradeCancelled
}

// ExecutionStats is a diagnostic snapshot of trade outcomes. The Engine does
// not populate it, and the dashboard API does not serve it.
type ExecutionStats struct {
	TotalAttempted int
	TotalFilled    int
	TotalFailed    int
	TotalHedged    int
}
