// Package types holds the shared vocabulary for the arbitrage engine: venues,
// sides, orders, fills, trades, positions and the opportunities that connect
// them. Every other package imports this one; it imports nothing internal.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Venue identifies a trading venue the engine is wired to.
type Venue string

const (
	VenuePolymarket Venue = "polymarket"
	VenueKalshi     Venue = "kalshi"
)

func (v Venue) String() string { return string(v) }

// Mode selects the top-level driver loop.
type Mode string

const (
	ModePaper    Mode = "paper"
	ModeLive     Mode = "live"
	ModeBacktest Mode = "backtest"
)

// ContractSide is a binary contract's side.
type ContractSide string

const (
	SideYes ContractSide = "YES"
	SideNo  ContractSide = "NO"
)

// Opposite returns the other binary side.
func (s ContractSide) Opposite() ContractSide {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// OrderSide is BUY or SELL.
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// OrderTIF is the order's time-in-force policy.
type OrderTIF string

const (
	TIFIOC OrderTIF = "IOC"
	TIFFOK OrderTIF = "FOK"
	TIFGTC OrderTIF = "GTC"
)

// EventType enumerates the canonical event categories the registry
// understands; the venue mappers only ever produce these.
type EventType string

const (
	EventElection EventType = "election"
	EventCrypto   EventType = "crypto"
	EventAwards   EventType = "awards"
	EventSports   EventType = "sports"
	EventFinance  EventType = "finance"
	EventPolitics EventType = "politics"
	EventOther    EventType = "other"
)

// EventScope enumerates the geographic/jurisdictional scope of an event.
type EventScope string

const (
	ScopeUS     EventScope = "US"
	ScopeGlobal EventScope = "global"
	ScopeEU     EventScope = "EU"
)

// MappingMethod records how a VenueMapping was produced.
type MappingMethod string

const (
	MethodManual       MappingMethod = "manual"
	MethodDeterministic MappingMethod = "deterministic"
	MethodHeuristic    MappingMethod = "heuristic"
)

// TradeStatus is the Trade state machine's current state.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradePartial   TradeStatus = "partial"
	TradeFilled    TradeStatus = "filled"
	TradeFailed    TradeStatus = "failed"
	TradeHedged    TradeStatus = "hedged"
	TradeCancelled TradeStatus = "cancelled"
)

// Terminal reports whether the status is one of the terminal states.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeFilled, TradeFailed, TradeHedged, TradeCancelled:
		return true
	default:
		return false
	}
}

// FeeModel is a venue's fee structure.
type FeeModel struct {
	MakerBps        decimal.Decimal
	TakerBps        decimal.Decimal
	GasEstimateUSD  decimal.Decimal
	WithdrawalFee   decimal.Decimal
}

// CanonicalEvent is the registry's unit of identity: a single real-world
// event recognized the same way across every venue.
type CanonicalEvent struct {
	EventID           string
	EventType         EventType
	Scope             EventScope
	CloseTime         time.Time
	CanonicalUnits    string
	DisplayTitle      string
	ResolutionSource  string
	Aliases           []string
	CreatedAt         time.Time
}

// VenueMapping binds one venue's raw market to a CanonicalEvent.
type VenueMapping struct {
	Venue           Venue
	MarketID        string
	EventID         string
	TitleRaw        string
	DescriptionRaw  string
	Outcomes        []string
	Confidence      float64
	MappingMethod   MappingMethod
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Contract is one binary leg tradeable at one venue.
type Contract struct {
	Venue            Venue
	ContractID       string
	NormalizedEventID string
	Side             ContractSide
	TickSize         decimal.Decimal
	SettlementCcy    string
	ExpiresAt        time.Time
	Fees             FeeModel
	MinSize          decimal.Decimal
	MaxSize          decimal.Decimal // zero value means unbounded
}

// Quote is a point-in-time top-of-book snapshot for one contract.
type Quote struct {
	Venue       Venue
	ContractID  string
	BestBid     decimal.Decimal
	BestAsk     decimal.Decimal
	BestBidSize decimal.Decimal
	BestAskSize decimal.Decimal
	Timestamp   time.Time
}

// Mid returns (bid+ask)/2.
func (q Quote) Mid() decimal.Decimal {
	return q.BestBid.Add(q.BestAsk).Div(decimal.NewFromInt(2))
}

// OrderRequest describes an order to place at one venue.
type OrderRequest struct {
	Venue         Venue
	ContractID    string
	Side          OrderSide
	Price         decimal.Decimal
	Qty           decimal.Decimal
	TIF           OrderTIF
	ClientOrderID string
}

// Fill acknowledges executed quantity at an average price.
type Fill struct {
	Venue         Venue
	ContractID    string
	Side          OrderSide
	AvgPrice      decimal.Decimal
	Qty           decimal.Decimal
	FeePaid       decimal.Decimal
	Timestamp     time.Time
	VenueOrderID  string
	ClientOrderID string
}

// ArbOpportunity is a two-legged, fee-adjusted arbitrage candidate.
type ArbOpportunity struct {
	EventID         string
	LegA            OrderRequest
	LegB            OrderRequest
	SideA           ContractSide
	SideB           ContractSide
	EdgeBps         decimal.Decimal
	Notional        decimal.Decimal
	Expiry          time.Time
	Rationale       string
	ConfidenceScore float64
	CreatedAt       time.Time
}

// Trade is a pair of fills (or fewer, on partial failure) grouped by a
// generated trade_id, tracked through the execution state machine.
type Trade struct {
	TradeID    string
	EventID    string
	VenueA     Venue
	VenueB     Venue
	ContractA  string
	ContractB  string
	SideA      OrderSide
	SideB      OrderSide
	ContractSideA ContractSide
	ContractSideB ContractSide
	Qty        decimal.Decimal
	PriceA     decimal.Decimal
	PriceB     decimal.Decimal
	FeeA       decimal.Decimal
	FeeB       decimal.Decimal
	EdgeBps    decimal.Decimal
	PnL        decimal.Decimal
	Status     TradeStatus
	HedgeFill  *Fill
	CreatedAt  time.Time
	FilledAt   *time.Time
}

// Position is the per (event_id, venue) net quantity / weighted-average-price
// aggregation the Portfolio owns.
type Position struct {
	Venue             Venue
	ContractID        string
	NormalizedEventID string
	Side              ContractSide
	Qty               decimal.Decimal
	AvgPrice          decimal.Decimal
	UnrealizedPnL     decimal.Decimal
	RealizedPnL       decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Balance is a venue's available/total currency balance.
type Balance struct {
	Venue     Venue
	Currency  string
	Available decimal.Decimal
	Total     decimal.Decimal
	Timestamp time.Time
}

// RiskLimits is the full limit stack admitted trades must stay within.
type RiskLimits struct {
	MaxOpenRiskUSD          decimal.Decimal
	MaxPerTradeUSD          decimal.Decimal
	MaxPositionPerEventUSD  decimal.Decimal
	MaxDrawdownPct          decimal.Decimal
	MinEdgeBps              decimal.Decimal
	MaxSlippageBps          decimal.Decimal
}

// HealthStatus summarizes one venue's recent error rate and latency.
type HealthStatus struct {
	Venue      Venue
	IsHealthy  bool
	LatencyMs  float64
	ErrorRate  float64
	LastUpdate time.Time
	Message    string
}
