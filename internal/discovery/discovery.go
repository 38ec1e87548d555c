// Package discovery implements the Discovery Engine: concurrent per-venue
// contract/quote refresh with error isolation, cross-venue pairing by
// canonical event_id, liquidity-gated edge computation, and the final
// filter+sort pass. Contracts are grouped by NormalizedEventID rather than
// assuming any fixed pair of venues, so the matcher scales to however many
// venues are configured.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arbbot/internal/fees"
	"arbbot/internal/odds"
	"arbbot/internal/types"
)

// minLiquidityUnits is the top-of-book size floor both sides of both legs
// must clear before an opportunity is considered.
var minLiquidityUnits = decimal.NewFromInt(100)

// expiryGuard rejects opportunities expiring within this window.
const expiryGuard = time.Hour

// VenueClient is the subset of exchange capabilities Discovery consumes.
// Shared with internal/execution.VenueClient; defined again here so this
// package has no import-cycle dependency on execution.
type VenueClient interface {
	Venue() types.Venue
	ListContracts(ctx context.Context) ([]types.Contract, error)
	GetQuotes(ctx context.Context, contractIDs []string) ([]types.Quote, error)
}

// Config holds the admission thresholds applied during discovery.
type Config struct {
	MinEdgeBps     decimal.Decimal
	MinNotionalUSD decimal.Decimal
}

// Engine caches per-venue contracts and per-contract quotes, and derives
// ArbOpportunity candidates from them on demand.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	fees     map[types.Venue]*fees.Calculator
	logger   *slog.Logger
	contracts map[types.Venue][]types.Contract
	quotes    map[string]types.Quote
	lastUpdate map[types.Venue]time.Time
}

// New builds a discovery Engine. feeCalcs maps each venue to the fee
// calculator used for effective-price cost estimation.
func New(cfg Config, feeCalcs map[types.Venue]*fees.Calculator, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		fees:       feeCalcs,
		logger:     logger,
		contracts:  make(map[types.Venue][]types.Contract),
		quotes:     make(map[string]types.Quote),
		lastUpdate: make(map[types.Venue]time.Time),
	}
}

// DiscoverOpportunities refreshes contracts (if requested or the cache is
// cold), re-groups them into cross-venue pairs by canonical event_id,
// refreshes quotes for the union of paired contract ids, computes edges for
// every pair, and returns the filtered/sorted result.
func (e *Engine) DiscoverOpportunities(ctx context.Context, clients map[types.Venue]VenueClient, refreshContracts bool) []types.ArbOpportunity {
	e.mu.Lock()
	cold := len(e.contracts) == 0
	e.mu.Unlock()

	if refreshContracts || cold {
		e.refreshContracts(ctx, clients)
	}

	pairs := e.matchedPairs()
	e.refreshQuotes(ctx, clients, pairs)

	var opportunities []types.ArbOpportunity
	for _, pair := range pairs {
		opportunities = append(opportunities, e.pairOpportunities(pair)...)
	}

	return e.filterAndSort(opportunities)
}

// refreshContracts fetches every venue's contract list concurrently; a
// single venue's failure is logged and does not affect the others.
func (e *Engine) refreshContracts(ctx context.Context, clients map[types.Venue]VenueClient) {
	var wg sync.WaitGroup
	for venue, client := range clients {
		wg.Add(1)
		go func(venue types.Venue, client VenueClient) {
			defer wg.Done()
			contracts, err := client.ListContracts(ctx)
			if err != nil {
				e.logger.Warn("discovery: failed to fetch contracts", "venue", venue, "error", err)
				return
			}
			e.mu.Lock()
			e.contracts[venue] = contracts
			e.lastUpdate[venue] = time.Now().UTC()
			e.mu.Unlock()
		}(venue, client)
	}
	wg.Wait()
}

// matchedPair is one candidate cross-venue combination: one contract from
// venueA and one from venueB, sharing an event_id, with opposite sides.
type matchedPair struct {
	eventID      string
	contractA    types.Contract
	contractB    types.Contract
	confidence   float64
}

// matchedPairs groups cached contracts by their canonical event_id, then
// for every ordered pair of distinct venues present in an event, emits one
// matchedPair per (YES contract on venueA, NO contract on venueB)
// combination. Ordered (not unordered) venue pairs so that both trade
// directions — A's YES against B's NO, and B's YES against A's NO — show up
// as independent pairs, each priced from its own two real contracts.
func (e *Engine) matchedPairs() []matchedPair {
	e.mu.Lock()
	defer e.mu.Unlock()

	byEvent := make(map[string]map[types.Venue][]types.Contract)
	for venue, contracts := range e.contracts {
		for _, c := range contracts {
			if c.NormalizedEventID == "" {
				continue
			}
			if byEvent[c.NormalizedEventID] == nil {
				byEvent[c.NormalizedEventID] = make(map[types.Venue][]types.Contract)
			}
			byEvent[c.NormalizedEventID][venue] = append(byEvent[c.NormalizedEventID][venue], c)
		}
	}

	var pairs []matchedPair
	for eventID, venueContracts := range byEvent {
		venues := make([]types.Venue, 0, len(venueContracts))
		for v := range venueContracts {
			venues = append(venues, v)
		}
		for _, venueA := range venues {
			for _, venueB := range venues {
				if venueA == venueB {
					continue
				}
				for _, ca := range venueContracts[venueA] {
					if ca.Side != types.SideYes {
						continue
					}
					for _, cb := range venueContracts[venueB] {
						if cb.Side != types.SideNo {
							continue
						}
						pairs = append(pairs, matchedPair{
							eventID:    eventID,
							contractA:  ca,
							contractB:  cb,
							confidence: 1.0,
						})
					}
				}
			}
		}
	}
	return pairs
}

// refreshQuotes fetches quotes for the union of paired contract ids, one
// batch request per venue, with the same per-venue error isolation as
// refreshContracts.
func (e *Engine) refreshQuotes(ctx context.Context, clients map[types.Venue]VenueClient, pairs []matchedPair) {
	wanted := make(map[types.Venue]map[string]struct{})
	for _, p := range pairs {
		addWanted(wanted, p.contractA.Venue, p.contractA.ContractID)
		addWanted(wanted, p.contractB.Venue, p.contractB.ContractID)
	}

	var wg sync.WaitGroup
	for venue, ids := range wanted {
		client, ok := clients[venue]
		if !ok {
			continue
		}
		contractIDs := make([]string, 0, len(ids))
		for id := range ids {
			contractIDs = append(contractIDs, id)
		}
		wg.Add(1)
		go func(venue types.Venue, client VenueClient, contractIDs []string) {
			defer wg.Done()
			quotes, err := client.GetQuotes(ctx, contractIDs)
			if err != nil {
				e.logger.Warn("discovery: failed to fetch quotes", "venue", venue, "error", err)
				return
			}
			e.mu.Lock()
			for _, q := range quotes {
				e.quotes[q.ContractID] = q
			}
			e.mu.Unlock()
		}(venue, client, contractIDs)
	}
	wg.Wait()
}

func addWanted(wanted map[types.Venue]map[string]struct{}, venue types.Venue, contractID string) {
	if wanted[venue] == nil {
		wanted[venue] = make(map[string]struct{})
	}
	wanted[venue][contractID] = struct{}{}
}

// pairOpportunities derives zero or one opportunity for a matched pair: a
// YES@A contract and a NO@B contract, bought together.
func (e *Engine) pairOpportunities(pair matchedPair) []types.ArbOpportunity {
	e.mu.Lock()
	quoteA, okA := e.quotes[pair.contractA.ContractID]
	quoteB, okB := e.quotes[pair.contractB.ContractID]
	e.mu.Unlock()
	if !okA || !okB {
		return nil
	}
	if !e.hasSufficientLiquidity(quoteA, quoteB) {
		return nil
	}

	effAskYesA := e.effectivePrice(pair.contractA, quoteA.BestAsk, quoteA.BestAskSize)
	effAskNoB := e.effectivePrice(pair.contractB, quoteB.BestAsk, quoteB.BestAskSize)

	edgeBps := odds.CalculateEdgeBps(effAskYesA, effAskNoB, decimal.Zero)
	if edgeBps.LessThan(e.cfg.MinEdgeBps) {
		return nil
	}
	rationale := fmt.Sprintf("YES@%s+NO@%s", pair.contractA.Venue, pair.contractB.Venue)

	qty := odds.MinExecutableQty(quoteA.BestAskSize, quoteB.BestAskSize, e.cfg.MinNotionalUSD, effAskYesA, effAskNoB)
	if qty.LessThan(decimal.NewFromInt(1)) {
		return nil
	}

	notional := qty.Mul(effAskYesA.Add(effAskNoB))
	if notional.LessThan(e.cfg.MinNotionalUSD) {
		return nil
	}

	expiry := pair.contractA.ExpiresAt
	if pair.contractB.ExpiresAt.Before(expiry) {
		expiry = pair.contractB.ExpiresAt
	}

	return []types.ArbOpportunity{{
		EventID: pair.eventID,
		LegA: types.OrderRequest{
			Venue:      pair.contractA.Venue,
			ContractID: pair.contractA.ContractID,
			Side:       types.OrderBuy,
			Price:      quoteA.BestAsk,
			Qty:        qty,
			TIF:        types.TIFIOC,
		},
		LegB: types.OrderRequest{
			Venue:      pair.contractB.Venue,
			ContractID: pair.contractB.ContractID,
			Side:       types.OrderBuy,
			Price:      quoteB.BestAsk,
			Qty:        qty,
			TIF:        types.TIFIOC,
		},
		SideA:           pair.contractA.Side,
		SideB:           pair.contractB.Side,
		EdgeBps:         edgeBps,
		Notional:        notional,
		Expiry:          expiry,
		Rationale:       rationale,
		ConfidenceScore: pair.confidence,
		CreatedAt:       time.Now().UTC(),
	}}
}

func (e *Engine) hasSufficientLiquidity(a, b types.Quote) bool {
	return a.BestBidSize.GreaterThanOrEqual(minLiquidityUnits) &&
		a.BestAskSize.GreaterThanOrEqual(minLiquidityUnits) &&
		b.BestBidSize.GreaterThanOrEqual(minLiquidityUnits) &&
		b.BestAskSize.GreaterThanOrEqual(minLiquidityUnits)
}

// effectivePrice estimates the fully-loaded per-unit cost of a taker BUY of
// the displayed top-of-book ask size, so flat per-transaction costs (gas)
// are spread over the quantity actually on offer, ahead of actual sizing.
func (e *Engine) effectivePrice(contract types.Contract, price, askSize decimal.Decimal) decimal.Decimal {
	calc, ok := e.fees[contract.Venue]
	if !ok {
		return price
	}
	return calc.CalculateEffectivePrice(types.OrderBuy, price, askSize, false)
}

// filterAndSort drops opportunities that fail the notional/edge gate a
// second time (defense in depth against a caller-mutated slice) or expire
// within the hour, then sorts the remainder by descending edge.
func (e *Engine) filterAndSort(opportunities []types.ArbOpportunity) []types.ArbOpportunity {
	now := time.Now().UTC()
	filtered := make([]types.ArbOpportunity, 0, len(opportunities))
	for _, opp := range opportunities {
		if !odds.IsArbitrageProfitable(opp.EdgeBps, e.cfg.MinEdgeBps, opp.Notional, e.cfg.MinNotionalUSD) {
			continue
		}
		if !opp.Expiry.IsZero() && opp.Expiry.Sub(now) < expiryGuard {
			continue
		}
		filtered = append(filtered, opp)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].EdgeBps.GreaterThan(filtered[j].EdgeBps)
	})
	return filtered
}

// Stats is a diagnostic snapshot of cache size and per-venue freshness,
// surfaced on the dashboard.
type Stats struct {
	TotalContracts  int
	TotalQuotes     int
	VenuesConnected int
	LastUpdate      map[types.Venue]time.Time
}

// GetDiscoveryStats returns the current cache sizes and per-venue freshness.
func (e *Engine) GetDiscoveryStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, contracts := range e.contracts {
		total += len(contracts)
	}
	lastUpdate := make(map[types.Venue]time.Time, len(e.lastUpdate))
	for v, t := range e.lastUpdate {
		lastUpdate[v] = t
	}
	return Stats{
		TotalContracts:  total,
		TotalQuotes:     len(e.quotes),
		VenuesConnected: len(e.contracts),
		LastUpdate:      lastUpdate,
	}
}
