// mock.go implements SimulatedVenueClient, the backtest (and test) venue
// connector: it never touches the network, filling IOC orders immediately
// against an injectable quote book guarded by a mutex.
package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

// SimulatedVenueClient serves a fixed set of contracts/quotes from memory
// and fills every order at the quoted price, deducting the configured fee.
// Balances are mutated on each fill so repeated paper trades deplete the
// simulated bankroll the same way a live venue would.
type SimulatedVenueClient struct {
	mu        sync.Mutex
	venue     types.Venue
	contracts []types.Contract
	quotes    map[string]types.Quote
	balances  map[string]types.Balance
	feeBps    decimal.Decimal
	healthy   bool
}

// NewSimulatedVenueClient builds a SimulatedVenueClient seeded with an
// initial balance and fee rate.
func NewSimulatedVenueClient(venue types.Venue, initialBalanceUSD, feeBps decimal.Decimal) *SimulatedVenueClient {
	return &SimulatedVenueClient{
		venue:  venue,
		quotes: make(map[string]types.Quote),
		balances: map[string]types.Balance{
			"USD": {Venue: venue, Currency: "USD", Available: initialBalanceUSD, Total: initialBalanceUSD},
		},
		feeBps:  feeBps,
		healthy: true,
	}
}

// SeedContract adds a contract to the simulated venue's listing.
func (s *SimulatedVenueClient) SeedContract(c types.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Venue = s.venue
	s.contracts = append(s.contracts, c)
}

// SeedQuote sets (or replaces) the top-of-book quote for a contract.
func (s *SimulatedVenueClient) SeedQuote(q types.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.Venue = s.venue
	s.quotes[q.ContractID] = q
}

// SetHealthy toggles the simulated Healthcheck response, for exercising
// circuit-breaker behavior in tests without a real network dependency.
func (s *SimulatedVenueClient) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// Venue returns the venue this client simulates.
func (s *SimulatedVenueClient) Venue() types.Venue { return s.venue }

// ListContracts returns the seeded contract list.
func (s *SimulatedVenueClient) ListContracts(context.Context) ([]types.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Contract, len(s.contracts))
	copy(out, s.contracts)
	return out, nil
}

// GetQuotes returns the seeded quotes for the requested contract ids.
func (s *SimulatedVenueClient) GetQuotes(_ context.Context, contractIDs []string) ([]types.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Quote, 0, len(contractIDs))
	for _, id := range contractIDs {
		if q, ok := s.quotes[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// PlaceOrder fills immediately at the contract's quoted price for BUY/SELL,
// deducting feeBps from the notional and debiting/crediting the simulated
// USD balance.
func (s *SimulatedVenueClient) PlaceOrder(_ context.Context, req types.OrderRequest) (*types.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quote, ok := s.quotes[req.ContractID]
	if !ok {
		return nil, fmt.Errorf("exchange: no quote seeded for contract %s", req.ContractID)
	}

	price := quote.BestAsk
	if req.Side == types.OrderSell {
		price = quote.BestBid
	}

	notional := price.Mul(req.Qty)
	fee := notional.Mul(s.feeBps).Div(decimal.NewFromInt(10000))

	bal := s.balances["USD"]
	if req.Side == types.OrderBuy {
		cost := notional.Add(fee)
		if cost.GreaterThan(bal.Available) {
			return nil, fmt.Errorf("exchange: insufficient simulated balance: need %s, have %s", cost, bal.Available)
		}
		bal.Available = bal.Available.Sub(cost)
		bal.Total = bal.Total.Sub(cost)
	} else {
		proceeds := notional.Sub(fee)
		bal.Available = bal.Available.Add(proceeds)
		bal.Total = bal.Total.Add(proceeds)
	}
	s.balances["USD"] = bal

	return &types.Fill{
		Venue:         s.venue,
		ContractID:    req.ContractID,
		Side:          req.Side,
		AvgPrice:      price,
		Qty:           req.Qty,
		FeePaid:       fee,
		Timestamp:     time.Now().UTC(),
		VenueOrderID:  "sim-" + uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
	}, nil
}

// CancelOrder always reports success: the simulated venue fills
// synchronously, so nothing is ever left resting to cancel.
func (s *SimulatedVenueClient) CancelOrder(context.Context, string) (bool, error) {
	return true, nil
}

// GetBalance returns the simulated balances.
func (s *SimulatedVenueClient) GetBalance(context.Context) (map[string]types.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.Balance, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out, nil
}

// Healthcheck reports the toggleable simulated health state.
func (s *SimulatedVenueClient) Healthcheck(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}
