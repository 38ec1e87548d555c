package api

import (
	"time"

	"github.com/shopspring/decimal"

	"arbbot/internal/config"
	"arbbot/internal/discovery"
	"arbbot/internal/portfolio"
	"arbbot/internal/risk"
	"arbbot/internal/types"
)

// SnapshotProvider is the read-only view the engine exposes to the
// dashboard. The engine loop (internal/engine) implements this by
// delegating to its Portfolio, Manager, and Discovery Engine.
type SnapshotProvider interface {
	Positions() []types.Position
	PortfolioSummary() portfolio.Summary
	TotalExposureUSD() decimal.Decimal
	RiskSummary() risk.RiskSummary
	RiskHealth() []risk.VenueHealth
	DiscoveryStats() discovery.Stats
}

// EventSource is implemented optionally by a provider that can stream
// live dashboard events; consumeEvents type-asserts for it.
type EventSource interface {
	DashboardEvents() <-chan DashboardEvent
}

// BuildSnapshot aggregates a SnapshotProvider's current state into a
// DashboardSnapshot for /api/snapshot and the WebSocket hello message.
func BuildSnapshot(provider SnapshotProvider, cfg config.Config) DashboardSnapshot {
	positions := provider.Positions()
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, PositionView{
			Venue:             string(p.Venue),
			ContractID:        p.ContractID,
			NormalizedEventID: p.NormalizedEventID,
			Side:              string(p.Side),
			Qty:               p.Qty,
			AvgPrice:          p.AvgPrice,
			RealizedPnL:       p.RealizedPnL,
			UnrealizedPnL:     p.UnrealizedPnL,
			ExposureUSD:       p.Qty.Mul(p.AvgPrice),
			UpdatedAt:         p.UpdatedAt,
		})
	}

	summary := provider.PortfolioSummary()
	riskSummary := provider.RiskSummary()
	totalExposure := provider.TotalExposureUSD()

	health := provider.RiskHealth()
	healthViews := make([]VenueHealthView, 0, len(health))
	for _, h := range health {
		healthViews = append(healthViews, VenueHealthView{
			Venue:     string(h.Venue),
			Healthy:   h.Healthy,
			LatencyMs: h.LatencyMs,
			ErrorRate: h.ErrorRate,
		})
	}

	var exposurePct float64
	if cfg.Risk.MaxOpenRiskUSD > 0 {
		f, _ := totalExposure.Float64()
		exposurePct = 100 * f / cfg.Risk.MaxOpenRiskUSD
	}

	stats := provider.DiscoveryStats()

	return DashboardSnapshot{
		Timestamp:          time.Now(),
		Positions:          views,
		TotalRealizedPnL:   summary.TotalRealizedPnL,
		TotalUnrealizedPnL: summary.TotalUnrealizedPnL,
		TradeCount:         summary.TradeCount,
		FilledTradeCount:   summary.FilledTradeCount,
		HedgedTradeCount:   summary.HedgedTradeCount,
		FailedTradeCount:   summary.FailedTradeCount,
		Risk: RiskView{
			RunningPnL:     riskSummary.RunningPnL,
			PeakPnL:        riskSummary.PeakPnL,
			TotalExposure:  totalExposure,
			MaxOpenRiskUSD: cfg.Risk.MaxOpenRiskUSD,
			ExposurePct:    exposurePct,
			VenueHealth:    healthViews,
		},
		Discovery: DiscoveryView{
			TotalContracts:  stats.TotalContracts,
			TotalQuotes:     stats.TotalQuotes,
			VenuesConnected: stats.VenuesConnected,
		},
		Config: NewConfigSummary(cfg),
	}
}
