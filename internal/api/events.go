package api

import "time"

// DashboardEvent wraps every push sent to connected WebSocket clients.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "trade", "position", "risk"
	Timestamp time.Time   `json:"timestamp"`
	EventID   string      `json:"event_id,omitempty"` // normalized event ID, empty for global events
	Data      interface{} `json:"data"`
}

// TradeEvent is emitted whenever the execution engine settles a trade.
type TradeEvent struct {
	TradeID  string  `json:"trade_id"`
	EventID  string  `json:"event_id"`
	Status   string  `json:"status"`
	Notional float64 `json:"notional"`
	PnL      float64 `json:"pnl"`
}

// RiskEvent describes a risk posture change: a circuit breaker
// latching/resetting, or the drawdown gate tripping. The engine's event feed
// carries trade events only; it emits no RiskEvent.
type RiskEvent struct {
	Kind    string `json:"kind"` // "breaker_latched", "breaker_reset", "drawdown_tripped"
	Venue   string `json:"venue,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// NewTradeEvent wraps a trade settlement as a DashboardEvent.
func NewTradeEvent(trade TradeEvent) DashboardEvent {
	return DashboardEvent{Type: "trade", Timestamp: time.Now(), EventID: trade.EventID, Data: trade}
}

// NewRiskEvent wraps a risk posture change as a DashboardEvent.
func NewRiskEvent(evt RiskEvent) DashboardEvent {
	return DashboardEvent{Type: "risk", Timestamp: time.Now(), Data: evt}
}
