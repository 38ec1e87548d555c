// Package api exposes a read-only HTTP + WebSocket dashboard over the
// engine's live state: positions, trades, risk health, and discovery
// throughput. A client gets a full snapshot on connect and then a stream of
// incremental events as trades settle.
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"arbbot/internal/config"
)

// DashboardSnapshot is the complete point-in-time dashboard state, served
// from /api/snapshot and pushed to every WebSocket client on connect.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Positions []PositionView `json:"positions"`

	TotalRealizedPnL   decimal.Decimal `json:"total_realized_pnl"`
	TotalUnrealizedPnL decimal.Decimal `json:"total_unrealized_pnl"`
	TradeCount         int             `json:"trade_count"`
	FilledTradeCount   int             `json:"filled_trade_count"`
	HedgedTradeCount   int             `json:"hedged_trade_count"`
	FailedTradeCount   int             `json:"failed_trade_count"`

	Risk RiskView `json:"risk"`

	Discovery DiscoveryView `json:"discovery"`

	Config ConfigSummary `json:"config"`
}

// PositionView is one open position, as surfaced to the dashboard.
type PositionView struct {
	Venue             string          `json:"venue"`
	ContractID        string          `json:"contract_id"`
	NormalizedEventID string          `json:"normalized_event_id"`
	Side              string          `json:"side"`
	Qty               decimal.Decimal `json:"qty"`
	AvgPrice          decimal.Decimal `json:"avg_price"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	ExposureUSD       decimal.Decimal `json:"exposure_usd"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// VenueHealthView is a per-venue circuit-breaker health summary.
type VenueHealthView struct {
	Venue     string  `json:"venue"`
	Healthy   bool    `json:"healthy"`
	LatencyMs float64 `json:"latency_ms"`
	ErrorRate float64 `json:"error_rate"`
}

// RiskView is the aggregate risk posture served to the dashboard.
type RiskView struct {
	RunningPnL      decimal.Decimal   `json:"running_pnl"`
	PeakPnL         decimal.Decimal   `json:"peak_pnl"`
	TotalExposure   decimal.Decimal   `json:"total_exposure_usd"`
	MaxOpenRiskUSD  float64           `json:"max_open_risk_usd"`
	ExposurePct     float64           `json:"exposure_pct"`
	VenueHealth     []VenueHealthView `json:"venue_health"`
}

// DiscoveryView is the discovery engine's cache freshness, as surfaced to
// the dashboard.
type DiscoveryView struct {
	TotalContracts  int       `json:"total_contracts"`
	TotalQuotes     int       `json:"total_quotes"`
	VenuesConnected int       `json:"venues_connected"`
	LastOpportunity time.Time `json:"last_opportunity,omitempty"`
}

// ConfigSummary surfaces the non-sensitive subset of the running config.
type ConfigSummary struct {
	Mode           string  `json:"mode"`
	MinEdgeBps     float64 `json:"min_edge_bps"`
	MinNotionalUSD float64 `json:"min_notional_usd"`
	KellyMultiplier float64 `json:"kelly_multiplier"`
	MaxOpenRiskUSD float64 `json:"max_open_risk_usd"`
}

// NewConfigSummary builds a ConfigSummary from the full engine config.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		Mode:            string(cfg.Mode),
		MinEdgeBps:      cfg.Discovery.MinEdgeBps,
		MinNotionalUSD:  cfg.Discovery.MinNotionalUSD,
		KellyMultiplier: cfg.Sizing.KellyMultiplier,
		MaxOpenRiskUSD:  cfg.Risk.MaxOpenRiskUSD,
	}
}
