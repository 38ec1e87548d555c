// Command arbbot runs the cross-venue binary-contract arbitrage engine.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	internal/engine/engine.go  — orchestrator: discover -> admit -> size -> execute -> record loop
//	internal/discovery        — cross-venue contract/quote matching and edge computation
//	internal/risk             — circuit breakers, drawdown gate, layered exposure caps
//	internal/sizing           — Kelly-fraction position sizing staircase
//	internal/execution        — two-legged trade placement, retry, partial-fill hedging
//	internal/portfolio        — position book and trade ledger
//	internal/registry         — canonical event registry and venue mapping persistence
//	internal/exchange         — REST/WebSocket venue clients, and the backtest simulator
//	internal/store            — JSON snapshot persistence (survives restarts)
//	internal/api               — read-only HTTP/WebSocket dashboard
//
// How it makes money:
//
//	The same real-world event is listed as a binary YES/NO contract on more
//	than one venue. When venue A's YES ask plus venue B's NO ask, after
//	fees, sums to less than $1.00, buying both legs locks in a riskless
//	profit at settlement regardless of outcome. The engine finds these
//	mispricings, sizes them by Kelly fraction narrowed through a limit
//	stack, and executes both legs atomically.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"arbbot/internal/api"
	"arbbot/internal/config"
	"arbbot/internal/engine"
	"arbbot/internal/exchange"
	"arbbot/internal/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ARB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	clients, err := buildVenueClients(*cfg, logger)
	if err != nil {
		logger.Error("failed to build venue clients", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(*cfg, clients, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, *cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("arbbot started",
		"mode", cfg.Mode,
		"venues", len(cfg.Venues),
		"min_edge_bps", cfg.Discovery.MinEdgeBps,
		"max_open_risk_usd", cfg.Risk.MaxOpenRiskUSD,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	eng.Stop()
}

// buildVenueClients constructs one VenueClient per configured venue. In
// backtest mode every venue is a SimulatedVenueClient seeded from the
// configured initial bankroll; in paper/live mode every venue is a
// rate-limited RESTClient (paper mode additionally sets RESTConfig.DryRun
// so no live orders are actually placed, but real market data is read).
func buildVenueClients(cfg config.Config, logger *slog.Logger) (map[types.Venue]engine.VenueClient, error) {
	clients := make(map[types.Venue]engine.VenueClient, len(cfg.Venues))

	for _, vc := range cfg.Venues {
		if cfg.Mode == types.ModeBacktest {
			feeBps := decimal.NewFromFloat(vc.TakerBps)
			sim := exchange.NewSimulatedVenueClient(vc.Venue, decimal.NewFromFloat(cfg.Sizing.InitialBankroll), feeBps)
			clients[vc.Venue] = sim
			continue
		}

		rl := rateLimiterFor(vc.Venue)
		restClient := exchange.NewRESTClient(exchange.RESTConfig{
			Venue:   vc.Venue,
			BaseURL: vc.BaseURL,
			APIKey:  vc.APIKey,
			DryRun:  cfg.Mode == types.ModePaper,
		}, rl, logger)
		clients[vc.Venue] = restClient
	}

	return clients, nil
}

func rateLimiterFor(venue types.Venue) *exchange.RateLimiter {
	switch venue {
	case types.VenueKalshi:
		return exchange.DefaultKalshiRateLimiter()
	default:
		return exchange.DefaultPolymarketRateLimiter()
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
