package execution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// fakeClient is a scriptable VenueClient stub for exercising the Engine
// without any network dependency.
type fakeClient struct {
	mu        sync.Mutex
	venue     types.Venue
	placeErr  error
	fill      *types.Fill
	placed    []types.OrderRequest
	cancelled []string
}

func (f *fakeClient) Venue() types.Venue { return f.venue }

func (f *fakeClient) ListContracts(context.Context) ([]types.Contract, error) { return nil, nil }

func (f *fakeClient) GetQuotes(context.Context, []string) ([]types.Quote, error) { return nil, nil }

func (f *fakeClient) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	fill := *f.fill
	fill.Venue = f.venue
	fill.ContractID = req.ContractID
	fill.Side = req.Side
	if fill.Qty.IsZero() {
		fill.Qty = req.Qty
	}
	return &fill, nil
}

func (f *fakeClient) CancelOrder(ctx context.Context, venueOrderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, venueOrderID)
	return true, nil
}

func (f *fakeClient) GetBalance(context.Context) (map[string]types.Balance, error) { return nil, nil }

func (f *fakeClient) Healthcheck(context.Context) bool { return f.placeErr == nil }

func testOpportunity() types.ArbOpportunity {
	return types.ArbOpportunity{
		EventID: "ELECTION:US:PRESIDENT:2028:TRUMP",
		LegA: types.OrderRequest{
			Venue:      types.VenuePolymarket,
			ContractID: "poly-trump-yes",
			Side:       types.OrderBuy,
			Price:      d("0.45"),
		},
		LegB: types.OrderRequest{
			Venue:      types.VenueKalshi,
			ContractID: "kalshi-trump-no",
			Side:       types.OrderBuy,
			Price:      d("0.45"),
		},
		SideA:    types.SideYes,
		SideB:    types.SideNo,
		EdgeBps:  d("1000"),
		Notional: d("1.0"),
	}
}

func TestExecuteBothLegsFill(t *testing.T) {
	t.Parallel()
	polyClient := &fakeClient{venue: types.VenuePolymarket, fill: &types.Fill{AvgPrice: d("0.45"), FeePaid: d("0.10")}}
	kalshiClient := &fakeClient{venue: types.VenueKalshi, fill: &types.Fill{AvgPrice: d("0.45"), FeePaid: d("0.12")}}

	eng := New(DefaultConfig(), map[types.Venue]VenueClient{
		types.VenuePolymarket: polyClient,
		types.VenueKalshi:     kalshiClient,
	}, DefaultLiquidityEstimator(), slog.Default())

	trade, err := eng.Execute(context.Background(), testOpportunity(), d("10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.Status != types.TradeFilled {
		t.Fatalf("status = %s, want filled", trade.Status)
	}
	if trade.ContractSideA != types.SideYes || trade.ContractSideB != types.SideNo {
		t.Fatalf("contract sides not carried through: %s / %s", trade.ContractSideA, trade.ContractSideB)
	}
	wantPnL := d("10").Mul(d("1000")).Div(decimal.NewFromInt(10000)).Sub(d("0.10")).Sub(d("0.12"))
	if !trade.PnL.Equal(wantPnL) {
		t.Errorf("pnl = %s, want %s", trade.PnL, wantPnL)
	}
}

func TestExecuteFirstLegFailsAfterRetries(t *testing.T) {
	t.Parallel()
	polyClient := &fakeClient{venue: types.VenuePolymarket, placeErr: errors.New("connection reset")}
	kalshiClient := &fakeClient{venue: types.VenueKalshi, fill: &types.Fill{AvgPrice: d("0.45")}}

	cfg := Config{MaxRetries: 2, RetryDelay: 0}
	eng := New(cfg, map[types.Venue]VenueClient{
		types.VenuePolymarket: polyClient,
		types.VenueKalshi:     kalshiClient,
	}, DefaultLiquidityEstimator(), slog.Default())

	trade, err := eng.Execute(context.Background(), testOpportunity(), d("10"))
	if err != nil {
		t.Fatalf("Execute should not bubble an error for a clean first-leg failure: %v", err)
	}
	if trade.Status != types.TradeFailed {
		t.Fatalf("status = %s, want failed", trade.Status)
	}
	if len(polyClient.placed) != 3 { // initial attempt + 2 retries
		t.Errorf("expected 3 place attempts (1 + MaxRetries), got %d", len(polyClient.placed))
	}
	if len(kalshiClient.placed) != 0 {
		t.Error("second leg must never be attempted when the first leg fails outright")
	}
}

// S6: second leg fails after the first leg fills; HedgePartialFill unwinds
// the filled leg via an opposite-side IOC order and marks the trade hedged.
func TestHedgePartialFill_S6(t *testing.T) {
	t.Parallel()
	polyClient := &fakeClient{venue: types.VenuePolymarket, fill: &types.Fill{AvgPrice: d("0.45")}}
	kalshiClient := &fakeClient{venue: types.VenueKalshi, placeErr: errors.New("insufficient liquidity")}

	cfg := Config{MaxRetries: 1, RetryDelay: 0}
	eng := New(cfg, map[types.Venue]VenueClient{
		types.VenuePolymarket: polyClient,
		types.VenueKalshi:     kalshiClient,
	}, DefaultLiquidityEstimator(), slog.Default())

	trade, err := eng.Execute(context.Background(), testOpportunity(), d("10"))
	if err == nil {
		t.Fatal("expected Execute to report the second-leg failure")
	}
	if trade.Status != types.TradePartial {
		t.Fatalf("status = %s, want partial", trade.Status)
	}

	firstFill := &types.Fill{Venue: types.VenuePolymarket, ContractID: "poly-trump-yes", Side: types.OrderBuy, Qty: d("10")}
	if err := eng.HedgePartialFill(context.Background(), trade, firstFill); err != nil {
		t.Fatalf("HedgePartialFill failed: %v", err)
	}
	if trade.Status != types.TradeHedged {
		t.Fatalf("status = %s, want hedged", trade.Status)
	}
	if trade.HedgeFill == nil {
		t.Fatal("expected HedgeFill to be populated")
	}

	last := polyClient.placed[len(polyClient.placed)-1]
	if last.Side != types.OrderSell {
		t.Errorf("hedge order side = %s, want SELL (opposite of original BUY)", last.Side)
	}
	if !last.Qty.Equal(d("10")) {
		t.Errorf("hedge order qty = %s, want 10", last.Qty)
	}
	if last.TIF != types.TIFIOC {
		t.Errorf("hedge order TIF = %s, want IOC", last.TIF)
	}
}

func TestOrderLegsByLiquidityPlacesLessLiquidFirst(t *testing.T) {
	t.Parallel()
	polyClient := &fakeClient{venue: types.VenuePolymarket, fill: &types.Fill{AvgPrice: d("0.45")}}
	kalshiClient := &fakeClient{venue: types.VenueKalshi, fill: &types.Fill{AvgPrice: d("0.45")}}

	liq := fixedLiquidity{types.VenuePolymarket: d("50"), types.VenueKalshi: d("5000")}
	eng := New(DefaultConfig(), map[types.Venue]VenueClient{
		types.VenuePolymarket: polyClient,
		types.VenueKalshi:     kalshiClient,
	}, liq, slog.Default())

	if _, err := eng.Execute(context.Background(), testOpportunity(), d("10")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(polyClient.placed) != 1 || len(kalshiClient.placed) != 1 {
		t.Fatal("expected exactly one order placed per venue")
	}

	// With leg B (kalshi) the less liquid one and failing, it must be tried
	// first: the failure stops execution before leg A is ever placed.
	failingKalshi := &fakeClient{venue: types.VenueKalshi, placeErr: errors.New("rejected")}
	idlePoly := &fakeClient{venue: types.VenuePolymarket, fill: &types.Fill{AvgPrice: d("0.45")}}
	reversed := fixedLiquidity{types.VenuePolymarket: d("5000"), types.VenueKalshi: d("50")}
	eng2 := New(Config{MaxRetries: 0}, map[types.Venue]VenueClient{
		types.VenuePolymarket: idlePoly,
		types.VenueKalshi:     failingKalshi,
	}, reversed, slog.Default())

	trade, _ := eng2.Execute(context.Background(), testOpportunity(), d("10"))
	if len(failingKalshi.placed) != 1 {
		t.Fatalf("less liquid kalshi leg placed %d times, want 1", len(failingKalshi.placed))
	}
	if len(idlePoly.placed) != 0 {
		t.Errorf("more liquid polymarket leg placed %d times before the less liquid leg succeeded, want 0", len(idlePoly.placed))
	}
	if trade.Status != types.TradeFailed {
		t.Errorf("status = %s, want %s", trade.Status, types.TradeFailed)
	}
}

type fixedLiquidity map[types.Venue]decimal.Decimal

func (f fixedLiquidity) EstimateLiquidity(_ context.Context, v types.Venue, _ string) decimal.Decimal {
	return f[v]
}

func TestCancelTradeIsNoOpOnTerminalTrade(t *testing.T) {
	t.Parallel()
	polyClient := &fakeClient{venue: types.VenuePolymarket}
	eng := New(DefaultConfig(), map[types.Venue]VenueClient{types.VenuePolymarket: polyClient}, DefaultLiquidityEstimator(), slog.Default())

	trade := &types.Trade{Status: types.TradeFilled}
	eng.CancelTrade(context.Background(), trade, "some-order-id")
	if trade.Status != types.TradeFilled {
		t.Fatalf("status changed from a terminal state: %s", trade.Status)
	}
	if len(polyClient.cancelled) != 0 {
		t.Error("should not attempt cancellation on an already-terminal trade")
	}
}
