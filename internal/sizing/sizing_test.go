package sizing

import (
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

func testRiskLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxOpenRiskUSD:         d("50000"),
		MaxPerTradeUSD:         d("1000"),
		MaxPositionPerEventUSD: d("5000"),
		MaxDrawdownPct:         d("20"),
		MinEdgeBps:             d("80"),
		MaxSlippageBps:         d("25"),
	}
}

// S5: bankroll=10,000, edge_bps=200 (edge_decimal=0.02), kelly_multiplier=0.25,
// max_per_trade=1,000, opportunity notional=1.0 => kelly_size=50, final=50.
func TestCalculatePositionSize_S5(t *testing.T) {
	t.Parallel()
	s := New(testRiskLimits(), d("0.25"), d("10000"))
	opp := types.ArbOpportunity{
		EventID:  "ELECTION:US:PRESIDENT:2028:TRUMP",
		LegA:     types.OrderRequest{Venue: types.VenuePolymarket, Price: d("0.40")},
		LegB:     types.OrderRequest{Venue: types.VenueKalshi, Price: d("0.40")},
		EdgeBps:  d("200"),
		Notional: d("1.0"),
	}

	summary := s.Summarize(opp, nil, d("0"), d("0"))
	if !summary.KellySize.Equal(d("50")) {
		t.Errorf("kelly_size = %s, want 50", summary.KellySize)
	}
	if !summary.FinalSize.Equal(d("50")) {
		t.Errorf("final_size = %s, want 50", summary.FinalSize)
	}
}

func TestCalculatePositionSizeFloorsAtOne(t *testing.T) {
	t.Parallel()
	s := New(testRiskLimits(), d("0.25"), d("100"))
	opp := types.ArbOpportunity{
		LegA:     types.OrderRequest{Venue: types.VenuePolymarket, Price: d("0.40")},
		LegB:     types.OrderRequest{Venue: types.VenueKalshi, Price: d("0.40")},
		EdgeBps:  d("80"),
		Notional: d("10"),
	}
	final := s.CalculatePositionSize(opp, nil, d("0"), d("0"))
	if final.LessThan(d("1")) {
		t.Errorf("final size = %s, must floor at 1.0 when positive", final)
	}
}

func TestCalculatePositionSizeZeroWhenEventCapExhausted(t *testing.T) {
	t.Parallel()
	s := New(testRiskLimits(), d("0.25"), d("10000"))
	opp := types.ArbOpportunity{
		LegA:     types.OrderRequest{Venue: types.VenuePolymarket, Price: d("0.40")},
		LegB:     types.OrderRequest{Venue: types.VenueKalshi, Price: d("0.40")},
		EdgeBps:  d("200"),
		Notional: d("1.0"),
	}
	// existing event exposure already at the cap: no more room.
	final := s.CalculatePositionSize(opp, nil, d("5000"), d("0"))
	if !final.IsZero() {
		t.Errorf("final size = %s, want 0 when per-event cap is exhausted", final)
	}
}

func TestCalculatePositionSizeClippedByBalance(t *testing.T) {
	t.Parallel()
	s := New(testRiskLimits(), d("0.25"), d("1000000"))
	opp := types.ArbOpportunity{
		LegA:     types.OrderRequest{Venue: types.VenuePolymarket, Price: d("0.50")},
		LegB:     types.OrderRequest{Venue: types.VenueKalshi, Price: d("0.50")},
		EdgeBps:  d("2500"),
		Notional: d("1.0"),
	}
	balances := map[types.Venue]types.Balance{
		types.VenuePolymarket: {Venue: types.VenuePolymarket, Available: d("10")},
		types.VenueKalshi:     {Venue: types.VenueKalshi, Available: d("10")},
	}
	final := s.CalculatePositionSize(opp, balances, d("0"), d("0"))
	// leg cost = final * 0.50 <= 10 => final <= 20
	if final.GreaterThan(d("20")) {
		t.Errorf("final size = %s, should be clipped by balance to <= 20", final)
	}
}

func TestCalculatePositionSizeNeverNegative(t *testing.T) {
	t.Parallel()
	s := New(testRiskLimits(), d("0.25"), d("10000"))
	opp := types.ArbOpportunity{
		LegA:     types.OrderRequest{Venue: types.VenuePolymarket, Price: d("0.40")},
		LegB:     types.OrderRequest{Venue: types.VenueKalshi, Price: d("0.40")},
		EdgeBps:  d("200"),
		Notional: d("1.0"),
	}
	final := s.CalculatePositionSize(opp, nil, d("0"), d("49999"))
	if final.Sign() < 0 {
		t.Errorf("final size must never be negative, got %s", final)
	}
}
