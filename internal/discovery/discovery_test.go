package discovery

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbbot/internal/fees"
	"arbbot/internal/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type stubClient struct {
	venue     types.Venue
	contracts []types.Contract
	quotes    map[string]types.Quote
	listErr   error
	quoteErr  error
}

func (s *stubClient) Venue() types.Venue { return s.venue }

func (s *stubClient) ListContracts(context.Context) ([]types.Contract, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.contracts, nil
}

func (s *stubClient) GetQuotes(_ context.Context, ids []string) ([]types.Quote, error) {
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	out := make([]types.Quote, 0, len(ids))
	for _, id := range ids {
		if q, ok := s.quotes[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func testFeeCalcs() map[types.Venue]*fees.Calculator {
	return map[types.Venue]*fees.Calculator{
		types.VenuePolymarket: fees.NewCalculator(fees.DefaultPolymarketFeeModel()),
		types.VenueKalshi:     fees.NewCalculator(fees.DefaultKalshiFeeModel()),
	}
}

func bigLiquidity() (decimal.Decimal, decimal.Decimal) {
	return d("1000"), d("1000")
}

// S1: ask_yes_a=0.45, ask_no_b=0.45, no fees => edge close to 1000bps once
// effective prices (with small taker fees) are applied. We assert edge
// clears the default min_edge_bps and the opportunity carries the expected
// legs and rationale direction.
func TestDiscoverOpportunities_S1(t *testing.T) {
	t.Parallel()
	bidSize, askSize := bigLiquidity()
	expiry := time.Now().Add(48 * time.Hour)

	polyContract := types.Contract{Venue: types.VenuePolymarket, ContractID: "poly-trump-yes", NormalizedEventID: "ELECTION:US:PRESIDENT:2028:TRUMP", Side: types.SideYes, ExpiresAt: expiry}
	kalshiContract := types.Contract{Venue: types.VenueKalshi, ContractID: "kalshi-trump-no", NormalizedEventID: "ELECTION:US:PRESIDENT:2028:TRUMP", Side: types.SideNo, ExpiresAt: expiry}

	polyClient := &stubClient{
		venue:     types.VenuePolymarket,
		contracts: []types.Contract{polyContract},
		quotes: map[string]types.Quote{
			"poly-trump-yes": {Venue: types.VenuePolymarket, ContractID: "poly-trump-yes", BestBid: d("0.44"), BestAsk: d("0.45"), BestBidSize: bidSize, BestAskSize: askSize},
		},
	}
	kalshiClient := &stubClient{
		venue:     types.VenueKalshi,
		contracts: []types.Contract{kalshiContract},
		quotes: map[string]types.Quote{
			"kalshi-trump-no": {Venue: types.VenueKalshi, ContractID: "kalshi-trump-no", BestBid: d("0.44"), BestAsk: d("0.45"), BestBidSize: bidSize, BestAskSize: askSize},
		},
	}

	cfg := Config{MinEdgeBps: d("80"), MinNotionalUSD: d("100")}
	eng := New(cfg, testFeeCalcs(), slog.Default())

	clients := map[types.Venue]VenueClient{
		types.VenuePolymarket: polyClient,
		types.VenueKalshi:     kalshiClient,
	}

	opps := eng.DiscoverOpportunities(context.Background(), clients, true)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	opp := opps[0]
	if opp.EventID != "ELECTION:US:PRESIDENT:2028:TRUMP" {
		t.Errorf("event_id = %s", opp.EventID)
	}
	if opp.SideA != types.SideYes || opp.SideB != types.SideNo {
		t.Errorf("sides = %s/%s, want YES/NO", opp.SideA, opp.SideB)
	}
	if opp.EdgeBps.LessThan(d("80")) {
		t.Errorf("edge_bps = %s, want >= 80", opp.EdgeBps)
	}
	if opp.EdgeBps.GreaterThanOrEqual(d("1000")) {
		t.Errorf("edge_bps = %s, want < 1000 (legs sum to 0.90 before fees; a 1000+bps edge means the other leg was priced at zero)", opp.EdgeBps)
	}
	if opp.Rationale != "YES@polymarket+NO@kalshi" {
		t.Errorf("rationale = %q, want YES@polymarket+NO@kalshi", opp.Rationale)
	}
}

func TestDiscoverOpportunitiesRejectsInsufficientLiquidity(t *testing.T) {
	t.Parallel()
	expiry := time.Now().Add(48 * time.Hour)
	polyContract := types.Contract{Venue: types.VenuePolymarket, ContractID: "poly-yes", NormalizedEventID: "EVT:1", Side: types.SideYes, ExpiresAt: expiry}
	kalshiContract := types.Contract{Venue: types.VenueKalshi, ContractID: "kalshi-no", NormalizedEventID: "EVT:1", Side: types.SideNo, ExpiresAt: expiry}

	polyClient := &stubClient{
		venue:     types.VenuePolymarket,
		contracts: []types.Contract{polyContract},
		quotes: map[string]types.Quote{
			"poly-yes": {ContractID: "poly-yes", BestBid: d("0.44"), BestAsk: d("0.45"), BestBidSize: d("5"), BestAskSize: d("5")},
		},
	}
	kalshiClient := &stubClient{
		venue:     types.VenueKalshi,
		contracts: []types.Contract{kalshiContract},
		quotes: map[string]types.Quote{
			"kalshi-no": {ContractID: "kalshi-no", BestBid: d("0.44"), BestAsk: d("0.45"), BestBidSize: d("5"), BestAskSize: d("5")},
		},
	}

	cfg := Config{MinEdgeBps: d("80"), MinNotionalUSD: d("100")}
	eng := New(cfg, testFeeCalcs(), slog.Default())
	clients := map[types.Venue]VenueClient{types.VenuePolymarket: polyClient, types.VenueKalshi: kalshiClient}

	opps := eng.DiscoverOpportunities(context.Background(), clients, true)
	if len(opps) != 0 {
		t.Fatalf("expected 0 opportunities below the liquidity floor, got %d", len(opps))
	}
}

func TestDiscoverOpportunitiesRejectsNearExpiry(t *testing.T) {
	t.Parallel()
	bidSize, askSize := bigLiquidity()
	soon := time.Now().Add(10 * time.Minute)

	polyContract := types.Contract{Venue: types.VenuePolymarket, ContractID: "poly-yes", NormalizedEventID: "EVT:1", Side: types.SideYes, ExpiresAt: soon}
	kalshiContract := types.Contract{Venue: types.VenueKalshi, ContractID: "kalshi-no", NormalizedEventID: "EVT:1", Side: types.SideNo, ExpiresAt: soon}

	polyClient := &stubClient{
		venue:     types.VenuePolymarket,
		contracts: []types.Contract{polyContract},
		quotes: map[string]types.Quote{
			"poly-yes": {ContractID: "poly-yes", BestBid: d("0.44"), BestAsk: d("0.45"), BestBidSize: bidSize, BestAskSize: askSize},
		},
	}
	kalshiClient := &stubClient{
		venue:     types.VenueKalshi,
		contracts: []types.Contract{kalshiContract},
		quotes: map[string]types.Quote{
			"kalshi-no": {ContractID: "kalshi-no", BestBid: d("0.44"), BestAsk: d("0.45"), BestBidSize: bidSize, BestAskSize: askSize},
		},
	}

	cfg := Config{MinEdgeBps: d("80"), MinNotionalUSD: d("100")}
	eng := New(cfg, testFeeCalcs(), slog.Default())
	clients := map[types.Venue]VenueClient{types.VenuePolymarket: polyClient, types.VenueKalshi: kalshiClient}

	opps := eng.DiscoverOpportunities(context.Background(), clients, true)
	if len(opps) != 0 {
		t.Fatalf("expected 0 opportunities expiring within the hour, got %d", len(opps))
	}
}

func TestDiscoverOpportunitiesIsolatesVenueContractError(t *testing.T) {
	t.Parallel()
	polyClient := &stubClient{venue: types.VenuePolymarket, listErr: context.DeadlineExceeded}
	kalshiClient := &stubClient{venue: types.VenueKalshi, contracts: nil}

	cfg := Config{MinEdgeBps: d("80"), MinNotionalUSD: d("100")}
	eng := New(cfg, testFeeCalcs(), slog.Default())
	clients := map[types.Venue]VenueClient{types.VenuePolymarket: polyClient, types.VenueKalshi: kalshiClient}

	opps := eng.DiscoverOpportunities(context.Background(), clients, true)
	if len(opps) != 0 {
		t.Fatalf("expected no opportunities, got %d", len(opps))
	}
	stats := eng.GetDiscoveryStats()
	if stats.VenuesConnected != 1 {
		t.Errorf("venues_connected = %d, want 1 (kalshi only; polymarket's fetch failed)", stats.VenuesConnected)
	}
}

func TestDiscoverOpportunitiesSortedByDescendingEdge(t *testing.T) {
	t.Parallel()
	bidSize, askSize := bigLiquidity()
	expiry := time.Now().Add(48 * time.Hour)

	polyContracts := []types.Contract{
		{Venue: types.VenuePolymarket, ContractID: "poly-a-yes", NormalizedEventID: "EVT:A", Side: types.SideYes, ExpiresAt: expiry},
		{Venue: types.VenuePolymarket, ContractID: "poly-b-yes", NormalizedEventID: "EVT:B", Side: types.SideYes, ExpiresAt: expiry},
	}
	kalshiContracts := []types.Contract{
		{Venue: types.VenueKalshi, ContractID: "kalshi-a-no", NormalizedEventID: "EVT:A", Side: types.SideNo, ExpiresAt: expiry},
		{Venue: types.VenueKalshi, ContractID: "kalshi-b-no", NormalizedEventID: "EVT:B", Side: types.SideNo, ExpiresAt: expiry},
	}

	polyClient := &stubClient{
		venue:     types.VenuePolymarket,
		contracts: polyContracts,
		quotes: map[string]types.Quote{
			"poly-a-yes": {ContractID: "poly-a-yes", BestBid: d("0.30"), BestAsk: d("0.30"), BestBidSize: bidSize, BestAskSize: askSize},
			"poly-b-yes": {ContractID: "poly-b-yes", BestBid: d("0.45"), BestAsk: d("0.45"), BestBidSize: bidSize, BestAskSize: askSize},
		},
	}
	kalshiClient := &stubClient{
		venue:     types.VenueKalshi,
		contracts: kalshiContracts,
		quotes: map[string]types.Quote{
			"kalshi-a-no": {ContractID: "kalshi-a-no", BestBid: d("0.30"), BestAsk: d("0.30"), BestBidSize: bidSize, BestAskSize: askSize},
			"kalshi-b-no": {ContractID: "kalshi-b-no", BestBid: d("0.45"), BestAsk: d("0.45"), BestBidSize: bidSize, BestAskSize: askSize},
		},
	}

	cfg := Config{MinEdgeBps: d("80"), MinNotionalUSD: d("100")}
	eng := New(cfg, testFeeCalcs(), slog.Default())
	clients := map[types.Venue]VenueClient{types.VenuePolymarket: polyClient, types.VenueKalshi: kalshiClient}

	opps := eng.DiscoverOpportunities(context.Background(), clients, true)
	if len(opps) != 2 {
		t.Fatalf("expected 2 opportunities, got %d", len(opps))
	}
	if opps[0].EdgeBps.LessThan(opps[1].EdgeBps) {
		t.Errorf("opportunities not sorted by descending edge: %s then %s", opps[0].EdgeBps, opps[1].EdgeBps)
	}
	if opps[0].EventID != "EVT:A" {
		t.Errorf("expected EVT:A (lower leg prices, bigger edge) first, got %s", opps[0].EventID)
	}
}
