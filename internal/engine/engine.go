// Package engine is the central orchestrator of the arbitrage bot.
//
// It wires together all subsystems:
//
//  1. Discovery Engine polls every venue for contracts/quotes and derives
//     cross-venue ArbOpportunity candidates.
//  2. Risk & Sizing Engine admits or rejects each opportunity, then sizes
//     the admitted ones by Kelly fraction narrowed through the limit stack.
//  3. Atomic Execution Engine places both legs, retrying and hedging
//     partial fills as needed.
//  4. Portfolio records every settled trade and marks positions to market.
//  5. Store persists a snapshot after every settled trade so the engine can
//     resume after a restart.
//
// Lifecycle: New() -> Start() -> [runs until ctx cancelled] -> Stop()
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arbbot/internal/api"
	"arbbot/internal/config"
	"arbbot/internal/discovery"
	"arbbot/internal/execution"
	"arbbot/internal/fees"
	"arbbot/internal/portfolio"
	"arbbot/internal/registry"
	"arbbot/internal/risk"
	"arbbot/internal/sizing"
	"arbbot/internal/store"
	"arbbot/internal/types"
)

// VenueClient is the full set of exchange capabilities the engine loop
// needs from a venue: the union of discovery.VenueClient and
// execution.VenueClient. internal/exchange.RESTClient and
// internal/exchange.SimulatedVenueClient both satisfy it.
type VenueClient interface {
	Venue() types.Venue
	ListContracts(ctx context.Context) ([]types.Contract, error)
	GetQuotes(ctx context.Context, contractIDs []string) ([]types.Quote, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Fill, error)
	CancelOrder(ctx context.Context, venueOrderID string) (bool, error)
	GetBalance(ctx context.Context) (map[string]types.Balance, error)
	Healthcheck(ctx context.Context) bool
}

const defaultPollInterval = 5 * time.Second

// Engine owns every subsystem's lifecycle and runs the discover -> admit ->
// size -> execute -> record loop.
type Engine struct {
	cfg     config.Config
	clients map[types.Venue]VenueClient

	discoveryEngine *discovery.Engine
	execEngine      *execution.Engine
	riskMgr         *risk.Manager
	sizer           *sizing.Sizer
	book            *portfolio.Portfolio
	reg             *registry.Registry
	st              *store.Store

	logger *slog.Logger

	dashboardEvents chan api.DashboardEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every subsystem from cfg. clients must contain a VenueClient for
// every venue in cfg.Venues.
func New(cfg config.Config, clients map[types.Venue]VenueClient, logger *slog.Logger) (*Engine, error) {
	feeCalcs := make(map[types.Venue]*fees.Calculator, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		feeCalcs[vc.Venue] = fees.NewCalculator(types.FeeModel{
			MakerBps:       decimal.NewFromFloat(vc.MakerBps),
			TakerBps:       decimal.NewFromFloat(vc.TakerBps),
			GasEstimateUSD: decimal.NewFromFloat(vc.GasEstimate),
		})
	}

	discEngine := discovery.New(discovery.Config{
		MinEdgeBps:     decimal.NewFromFloat(cfg.Discovery.MinEdgeBps),
		MinNotionalUSD: decimal.NewFromFloat(cfg.Discovery.MinNotionalUSD),
	}, feeCalcs, logger)

	limits := risk.Limits{
		RiskLimits: types.RiskLimits{
			MaxOpenRiskUSD:         decimal.NewFromFloat(cfg.Risk.MaxOpenRiskUSD),
			MaxPerTradeUSD:         decimal.NewFromFloat(cfg.Risk.MaxPerTradeUSD),
			MaxPositionPerEventUSD: decimal.NewFromFloat(cfg.Risk.MaxPositionPerEventUSD),
			MaxDrawdownPct:         decimal.NewFromFloat(cfg.Risk.MaxDrawdownPct),
			MinEdgeBps:             decimal.NewFromFloat(cfg.Risk.MinEdgeBps),
			MaxSlippageBps:         decimal.NewFromFloat(cfg.Risk.MaxSlippageBps),
		},
		CircuitBreakerErrorRate: cfg.Risk.CircuitBreakerErrorRate,
		CircuitBreakerLatencyMs: cfg.Risk.CircuitBreakerLatencyMs,
	}
	riskMgr := risk.New(limits, logger)

	sizer := sizing.New(limits.RiskLimits, decimal.NewFromFloat(cfg.Sizing.KellyMultiplier), decimal.NewFromFloat(cfg.Sizing.InitialBankroll))

	execClients := make(map[types.Venue]execution.VenueClient, len(clients))
	for v, c := range clients {
		execClients[v] = c
	}
	execCfg := execution.DefaultConfig()
	if cfg.Execution.MaxRetries > 0 {
		execCfg.MaxRetries = cfg.Execution.MaxRetries
	}
	if cfg.Execution.RetryDelay > 0 {
		execCfg.RetryDelay = cfg.Execution.RetryDelay
	}
	execEngine := execution.New(execCfg, execClients, execution.DefaultLiquidityEstimator(), logger)

	reg := registry.New(cfg.Registry.EventsPath, cfg.Registry.MappingsPath)
	if warnings, err := reg.Load(); err != nil {
		logger.Warn("failed to load canonical event registry, starting empty", "error", err)
	} else {
		for _, w := range warnings {
			logger.Warn("registry load warning", "warning", w)
		}
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}

	book := portfolio.New(decimal.NewFromFloat(cfg.Sizing.InitialBankroll))
	if snap, err := st.LoadSnapshot(); err != nil {
		logger.Warn("failed to load persisted snapshot, starting fresh", "error", err)
	} else {
		for _, trade := range snap.Trades {
			_ = book.AddTrade(trade)
		}
	}

	var dashEvents chan api.DashboardEvent
	if cfg.Dashboard.Enabled {
		dashEvents = make(chan api.DashboardEvent, 100)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:             cfg,
		clients:         clients,
		discoveryEngine: discEngine,
		execEngine:      execEngine,
		riskMgr:         riskMgr,
		sizer:           sizer,
		book:            book,
		reg:             reg,
		st:              st,
		logger:          logger.With("component", "engine"),
		dashboardEvents: dashEvents,
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// Start launches the main loop and the (optional) dashboard event feed.
// Returns immediately; the loop runs in a background goroutine until Stop.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()
	return nil
}

// Stop cancels the loop, waits for it to exit, and persists a final
// snapshot.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")
	e.cancel()
	e.wg.Wait()

	snap := store.Snapshot{Positions: e.book.AllPositions(), Trades: e.book.Trades()}
	if err := e.st.SaveSnapshot(snap); err != nil {
		e.logger.Error("failed to save final snapshot", "error", err)
	}
	if err := e.reg.Save(); err != nil {
		e.logger.Error("failed to persist canonical event registry", "error", err)
	}
	e.st.Close()
	e.logger.Info("shutdown complete")
}

// run is the main discover -> admit -> size -> execute -> record loop. It
// fires once immediately and then on every poll interval, matching the
// original's asyncio scheduling loop.
func (e *Engine) run() {
	interval := e.cfg.Discovery.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.tick(true)
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.tick(false)
		}
	}
}

func (e *Engine) tick(refreshContracts bool) {
	clients := e.discoveryClients()
	opportunities := e.discoveryEngine.DiscoverOpportunities(e.ctx, clients, refreshContracts)

	for _, opp := range opportunities {
		e.considerOpportunity(opp)
	}

	e.markToMarket()
}

func (e *Engine) considerOpportunity(opp types.ArbOpportunity) {
	existingExposure := e.book.EventExposureUSD(opp.EventID)
	totalExposure := e.book.TotalExposureUSD()

	if ok, reason := e.riskMgr.IsAllowed(opp, existingExposure, totalExposure); !ok {
		e.logger.Debug("opportunity rejected", "event_id", opp.EventID, "reason", reason)
		return
	}

	balances := e.fetchBalances()
	size := e.sizer.CalculatePositionSize(opp, balances, existingExposure, totalExposure)
	if size.Sign() <= 0 {
		return
	}

	start := time.Now()
	trade, err := e.execEngine.Execute(e.ctx, opp, size)
	latencyMs := float64(time.Since(start).Milliseconds())
	e.riskMgr.RecordLatency(opp.LegA.Venue, time.Now(), latencyMs)
	if err != nil {
		e.logger.Error("execution failed", "event_id", opp.EventID, "error", err)
		e.riskMgr.RecordError(opp.LegA.Venue, time.Now())
		return
	}

	if err := e.book.AddTrade(*trade); err != nil {
		e.logger.Error("failed to record trade", "trade_id", trade.TradeID, "error", err)
	}
	e.riskMgr.RecordTradePnL(trade.PnL, time.Now())
	e.persistSnapshot()
	e.emitTradeEvent(*trade)
}

func (e *Engine) fetchBalances() map[types.Venue]types.Balance {
	out := make(map[types.Venue]types.Balance, len(e.clients))
	for venue, client := range e.clients {
		balances, err := client.GetBalance(e.ctx)
		if err != nil {
			e.logger.Warn("failed to fetch balance", "venue", venue, "error", err)
			continue
		}
		for _, b := range balances {
			out[venue] = b
			break
		}
	}
	return out
}

// markToMarket refreshes unrealized PnL for every open position using the
// latest quote snapshot already cached by the discovery engine.
func (e *Engine) markToMarket() {
	marks := make(map[string]decimal.Decimal)
	for _, pos := range e.book.AllPositions() {
		quotes, err := e.clients[pos.Venue].GetQuotes(e.ctx, []string{pos.ContractID})
		if err != nil || len(quotes) == 0 {
			continue
		}
		marks[pos.ContractID] = quotes[0].BestBid.Add(quotes[0].BestAsk).Div(decimal.NewFromInt(2))
	}
	e.book.MarkToMarket(marks)
}

func (e *Engine) persistSnapshot() {
	snap := store.Snapshot{Positions: e.book.AllPositions(), Trades: e.book.Trades()}
	if err := e.st.SaveSnapshot(snap); err != nil {
		e.logger.Error("failed to persist snapshot", "error", err)
	}
}

func (e *Engine) discoveryClients() map[types.Venue]discovery.VenueClient {
	out := make(map[types.Venue]discovery.VenueClient, len(e.clients))
	for v, c := range e.clients {
		out[v] = c
	}
	return out
}

func (e *Engine) emitTradeEvent(trade types.Trade) {
	if e.dashboardEvents == nil {
		return
	}
	notional, _ := trade.Qty.Mul(trade.PriceA).Float64()
	pnl, _ := trade.PnL.Float64()
	evt := api.NewTradeEvent(api.TradeEvent{
		TradeID:  trade.TradeID,
		EventID:  trade.EventID,
		Status:   string(trade.Status),
		Notional: notional,
		PnL:      pnl,
	})
	select {
	case e.dashboardEvents <- evt:
	default:
		e.logger.Warn("dashboard event channel full, dropping trade event")
	}
}

// DashboardEvents implements api.EventSource.
func (e *Engine) DashboardEvents() <-chan api.DashboardEvent {
	return e.dashboardEvents
}

// Positions implements api.SnapshotProvider.
func (e *Engine) Positions() []types.Position { return e.book.AllPositions() }

// PortfolioSummary implements api.SnapshotProvider.
func (e *Engine) PortfolioSummary() portfolio.Summary { return e.book.GetPortfolioSummary() }

// TotalExposureUSD implements api.SnapshotProvider.
func (e *Engine) TotalExposureUSD() decimal.Decimal { return e.book.TotalExposureUSD() }

// RiskSummary implements api.SnapshotProvider.
func (e *Engine) RiskSummary() risk.RiskSummary { return e.riskMgr.GetRiskSummary() }

// RiskHealth implements api.SnapshotProvider.
func (e *Engine) RiskHealth() []risk.VenueHealth { return e.riskMgr.HealthSnapshot() }

// DiscoveryStats implements api.SnapshotProvider.
func (e *Engine) DiscoveryStats() discovery.Stats { return e.discoveryEngine.GetDiscoveryStats() }
