// ws.go implements a venue-agnostic WebSocket quote feed: auto-reconnect
// with backoff and a read-deadline watchdog feeding a single Quote stream.
// The discovery loop does not use this feed; it polls quotes through
// GetQuotes.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

const (
	wsPingInterval     = 50 * time.Second
	wsReadTimeout      = 90 * time.Second
	wsMaxReconnectWait = 30 * time.Second
	wsWriteTimeout     = 10 * time.Second
	quoteBufferSize    = 256
)

type wsQuoteMessage struct {
	ContractID  string  `json:"contract_id"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
	BestBidSize float64 `json:"best_bid_size"`
	BestAskSize float64 `json:"best_ask_size"`
}

// QuoteFeed maintains a single reconnecting WebSocket connection to a
// venue's public quote stream.
type QuoteFeed struct {
	venue types.Venue
	url   string

	connMu sync.Mutex
	conn   *websocket.Conn

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	quoteCh chan types.Quote
	logger  *slog.Logger
}

// NewQuoteFeed builds a QuoteFeed for one venue's WebSocket URL.
func NewQuoteFeed(venue types.Venue, wsURL string, logger *slog.Logger) *QuoteFeed {
	return &QuoteFeed{
		venue:      venue,
		url:        wsURL,
		subscribed: make(map[string]bool),
		quoteCh:    make(chan types.Quote, quoteBufferSize),
		logger:     logger.With("component", "ws_quote_feed", "venue", venue),
	}
}

// Quotes returns the channel consumers read streamed quotes from.
func (f *QuoteFeed) Quotes() <-chan types.Quote { return f.quoteCh }

// Subscribe marks a contract id for (re-)subscription and, if connected,
// sends the subscription message immediately.
func (f *QuoteFeed) Subscribe(contractID string) {
	f.subscribedMu.Lock()
	f.subscribed[contractID] = true
	f.subscribedMu.Unlock()

	f.connMu.Lock()
	conn := f.conn
	f.connMu.Unlock()
	if conn != nil {
		_ = f.sendSubscribe(conn, contractID)
	}
}

// Run connects and reconnects with exponential backoff until ctx is
// cancelled.
func (f *QuoteFeed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connectAndRead(ctx); err != nil {
			f.logger.Warn("quote feed disconnected", "error", err, "retry_in", backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsMaxReconnectWait {
			backoff = wsMaxReconnectWait
		}
	}
}

func (f *QuoteFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		f.connMu.Lock()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.subscribedMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subscribedMu.RUnlock()
	for _, id := range ids {
		if err := f.sendSubscribe(conn, id); err != nil {
			return fmt.Errorf("resubscribe: %w", err)
		}
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.connMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				f.connMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg wsQuoteMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Debug("quote feed: skipping unparseable message", "error", err)
			continue
		}

		quote := types.Quote{
			Venue:       f.venue,
			ContractID:  msg.ContractID,
			BestBid:     decimal.NewFromFloat(msg.BestBid),
			BestAsk:     decimal.NewFromFloat(msg.BestAsk),
			BestBidSize: decimal.NewFromFloat(msg.BestBidSize),
			BestAskSize: decimal.NewFromFloat(msg.BestAskSize),
			Timestamp:   time.Now().UTC(),
		}

		select {
		case f.quoteCh <- quote:
		default:
			f.logger.Warn("quote feed: consumer too slow, dropping quote", "contract_id", quote.ContractID)
		}
	}
}

func (f *QuoteFeed) sendSubscribe(conn *websocket.Conn, contractID string) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(map[string]any{
		"type":        "subscribe",
		"contract_id": contractID,
	})
}
