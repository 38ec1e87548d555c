// Package exchange implements the venue REST/WebSocket clients behind
// execution.VenueClient/discovery.VenueClient: rate-limited HTTP access to
// Kalshi and Polymarket, a quote-streaming WebSocket feed, and a
// SimulatedVenueClient for backtests and tests. The same rate-limit/retry-wrapped
// resty client is parameterized per venue rather than hardcoded to one
// exchange's endpoints; on-chain order signing is out of scope since
// settlement happens off-book, not on-chain.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

// RESTConfig parameterizes a venue's REST client.
type RESTConfig struct {
	Venue   types.Venue
	BaseURL string
	APIKey  string
	Timeout time.Duration
	DryRun  bool
}

// wireContract/wireQuote/wireFill/wireBalance are the venue-agnostic JSON
// shapes this client marshals/unmarshals. A production build would have one
// such set per venue's actual API; both Kalshi and Polymarket happen to
// expose roughly this shape (ticker/market id, yes/no price in cents or
// probability, open interest as size) once normalized.
type wireContract struct {
	ContractID string  `json:"contract_id"`
	EventID    string  `json:"event_id"`
	Side       string  `json:"side"`
	TickSize   float64 `json:"tick_size"`
	ExpiresAt  string  `json:"expires_at"`
	MinSize    float64 `json:"min_size"`
	MaxSize    float64 `json:"max_size"`
}

type wireQuote struct {
	ContractID  string  `json:"contract_id"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
	BestBidSize float64 `json:"best_bid_size"`
	BestAskSize float64 `json:"best_ask_size"`
}

type wireOrderResponse struct {
	VenueOrderID string  `json:"order_id"`
	AvgPrice     float64 `json:"avg_price"`
	FilledQty    float64 `json:"filled_qty"`
	FeePaid      float64 `json:"fee_paid"`
}

type wireBalance struct {
	Currency  string  `json:"currency"`
	Available float64 `json:"available"`
	Total     float64 `json:"total"`
}

// RESTClient is a rate-limited, retrying HTTP client for one venue,
// implementing both discovery.VenueClient and execution.VenueClient.
type RESTClient struct {
	venue  types.Venue
	http   *resty.Client
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewRESTClient builds a RESTClient. rl is nil-safe: a nil RateLimiter
// disables throttling (useful for tests hitting a local fake server).
func NewRESTClient(cfg RESTConfig, rl *RateLimiter, logger *slog.Logger) *RESTClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	if cfg.APIKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &RESTClient{
		venue:  cfg.Venue,
		http:   httpClient,
		rl:     rl,
		dryRun: cfg.DryRun,
		logger: logger.With("venue", cfg.Venue),
	}
}

// Venue returns the venue this client is wired to.
func (c *RESTClient) Venue() types.Venue { return c.venue }

func (c *RESTClient) waitBook(ctx context.Context) error {
	if c.rl == nil {
		return nil
	}
	return c.rl.Book.Wait(ctx)
}

func (c *RESTClient) waitOrder(ctx context.Context) error {
	if c.rl == nil {
		return nil
	}
	return c.rl.Order.Wait(ctx)
}

func (c *RESTClient) waitCancel(ctx context.Context) error {
	if c.rl == nil {
		return nil
	}
	return c.rl.Cancel.Wait(ctx)
}

// ListContracts fetches every tradeable contract at this venue.
func (c *RESTClient) ListContracts(ctx context.Context) ([]types.Contract, error) {
	if err := c.waitBook(ctx); err != nil {
		return nil, err
	}

	var wire []wireContract
	resp, err := c.http.R().SetContext(ctx).SetResult(&wire).Get("/contracts")
	if err != nil {
		return nil, fmt.Errorf("list_contracts: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list_contracts: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]types.Contract, 0, len(wire))
	for _, w := range wire {
		expiresAt, _ := time.Parse(time.RFC3339, w.ExpiresAt)
		out = append(out, types.Contract{
			Venue:             c.venue,
			ContractID:        w.ContractID,
			NormalizedEventID: w.EventID,
			Side:              types.ContractSide(w.Side),
			TickSize:          decimal.NewFromFloat(w.TickSize),
			ExpiresAt:         expiresAt,
			MinSize:           decimal.NewFromFloat(w.MinSize),
			MaxSize:           decimal.NewFromFloat(w.MaxSize),
		})
	}
	return out, nil
}

// GetQuotes fetches top-of-book quotes for the given contract ids.
func (c *RESTClient) GetQuotes(ctx context.Context, contractIDs []string) ([]types.Quote, error) {
	if len(contractIDs) == 0 {
		return nil, nil
	}
	if err := c.waitBook(ctx); err != nil {
		return nil, err
	}

	var wire []wireQuote
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(map[string][]string{"contract_id": contractIDs}).
		SetResult(&wire).
		Get("/quotes")
	if err != nil {
		return nil, fmt.Errorf("get_quotes: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get_quotes: status %d: %s", resp.StatusCode(), resp.String())
	}

	now := time.Now().UTC()
	out := make([]types.Quote, 0, len(wire))
	for _, w := range wire {
		out = append(out, types.Quote{
			Venue:       c.venue,
			ContractID:  w.ContractID,
			BestBid:     decimal.NewFromFloat(w.BestBid),
			BestAsk:     decimal.NewFromFloat(w.BestAsk),
			BestBidSize: decimal.NewFromFloat(w.BestBidSize),
			BestAskSize: decimal.NewFromFloat(w.BestAskSize),
			Timestamp:   now,
		})
	}
	return out, nil
}

// PlaceOrder submits an order and waits for its fill acknowledgment.
func (c *RESTClient) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Fill, error) {
	if c.dryRun {
		return &types.Fill{
			Venue:         c.venue,
			ContractID:    req.ContractID,
			Side:          req.Side,
			AvgPrice:      req.Price,
			Qty:           req.Qty,
			Timestamp:     time.Now().UTC(),
			VenueOrderID:  "dry-run-" + uuid.NewString(),
			ClientOrderID: req.ClientOrderID,
		}, nil
	}

	if err := c.waitOrder(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"contract_id":     req.ContractID,
		"side":            string(req.Side),
		"price":           req.Price.InexactFloat64(),
		"qty":             req.Qty.InexactFloat64(),
		"tif":             string(req.TIF),
		"client_order_id": req.ClientOrderID,
	}

	var wire wireOrderResponse
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&wire).Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("place_order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("place_order: status %d: %s", resp.StatusCode(), resp.String())
	}

	return &types.Fill{
		Venue:         c.venue,
		ContractID:    req.ContractID,
		Side:          req.Side,
		AvgPrice:      decimal.NewFromFloat(wire.AvgPrice),
		Qty:           decimal.NewFromFloat(wire.FilledQty),
		FeePaid:       decimal.NewFromFloat(wire.FeePaid),
		Timestamp:     time.Now().UTC(),
		VenueOrderID:  wire.VenueOrderID,
		ClientOrderID: req.ClientOrderID,
	}, nil
}

// CancelOrder cancels a resting order by the venue's own order id.
func (c *RESTClient) CancelOrder(ctx context.Context, venueOrderID string) (bool, error) {
	if c.dryRun {
		return true, nil
	}
	if err := c.waitCancel(ctx); err != nil {
		return false, err
	}

	resp, err := c.http.R().SetContext(ctx).Delete("/orders/" + venueOrderID)
	if err != nil {
		return false, fmt.Errorf("cancel_order: %w", err)
	}
	return resp.StatusCode() == http.StatusOK, nil
}

// GetBalance fetches available/total balances keyed by currency.
func (c *RESTClient) GetBalance(ctx context.Context) (map[string]types.Balance, error) {
	if err := c.waitBook(ctx); err != nil {
		return nil, err
	}

	var wire []wireBalance
	resp, err := c.http.R().SetContext(ctx).SetResult(&wire).Get("/balance")
	if err != nil {
		return nil, fmt.Errorf("get_balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get_balance: status %d: %s", resp.StatusCode(), resp.String())
	}

	now := time.Now().UTC()
	out := make(map[string]types.Balance, len(wire))
	for _, w := range wire {
		out[w.Currency] = types.Balance{
			Venue:     c.venue,
			Currency:  w.Currency,
			Available: decimal.NewFromFloat(w.Available),
			Total:     decimal.NewFromFloat(w.Total),
			Timestamp: now,
		}
	}
	return out, nil
}

// Healthcheck pings the venue's status endpoint.
func (c *RESTClient) Healthcheck(ctx context.Context) bool {
	resp, err := c.http.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		c.logger.Debug("healthcheck failed", "error", err)
		return false
	}
	return resp.StatusCode() == http.StatusOK
}
