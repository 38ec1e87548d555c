package exchange

import (
	"context"
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

func TestSimulatedVenueClientBuyDebitsBalance(t *testing.T) {
	t.Parallel()
	sim := NewSimulatedVenueClient(types.VenuePolymarket, d("1000"), d("25"))
	sim.SeedQuote(types.Quote{ContractID: "c1", BestBid: d("0.44"), BestAsk: d("0.45")})

	fill, err := sim.PlaceOrder(context.Background(), types.OrderRequest{ContractID: "c1", Side: types.OrderBuy, Qty: d("10")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fill.AvgPrice.Equal(d("0.45")) {
		t.Errorf("avg_price = %s, want 0.45 (the ask)", fill.AvgPrice)
	}

	balances, err := sim.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	// cost = 10*0.45 + fee(25bps of 4.5=0.01125) = 4.51125
	want := d("1000").Sub(d("4.51125"))
	if !balances["USD"].Available.Equal(want) {
		t.Errorf("available = %s, want %s", balances["USD"].Available, want)
	}
}

func TestSimulatedVenueClientRejectsOverdraft(t *testing.T) {
	t.Parallel()
	sim := NewSimulatedVenueClient(types.VenuePolymarket, d("1"), d("0"))
	sim.SeedQuote(types.Quote{ContractID: "c1", BestBid: d("0.44"), BestAsk: d("0.45")})

	_, err := sim.PlaceOrder(context.Background(), types.OrderRequest{ContractID: "c1", Side: types.OrderBuy, Qty: d("10")})
	if err == nil {
		t.Fatal("expected insufficient-balance error")
	}
}

func TestSimulatedVenueClientUnknownContract(t *testing.T) {
	t.Parallel()
	sim := NewSimulatedVenueClient(types.VenuePolymarket, d("1000"), d("25"))
	_, err := sim.PlaceOrder(context.Background(), types.OrderRequest{ContractID: "unseeded", Side: types.OrderBuy, Qty: d("1")})
	if err == nil {
		t.Fatal("expected an error for an unseeded contract")
	}
}

func TestSimulatedVenueClientHealthToggle(t *testing.T) {
	t.Parallel()
	sim := NewSimulatedVenueClient(types.VenuePolymarket, d("1000"), d("0"))
	if !sim.Healthcheck(context.Background()) {
		t.Fatal("expected healthy by default")
	}
	sim.SetHealthy(false)
	if sim.Healthcheck(context.Background()) {
		t.Fatal("expected unhealthy after SetHealthy(false)")
	}
}
