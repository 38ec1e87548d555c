// Package risk implements the Risk & Sizing Engine's admissibility gate:
// per-venue circuit breakers over sliding windows of errors and latencies,
// a drawdown gate over the running PnL sequence, and the layered exposure
// caps that together decide whether an opportunity may be traded.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

const (
	errorWindowCapacity   = 100  // per-venue sliding window of error timestamps
	latencyWindowCapacity = 100  // per-venue sliding window of latency samples
	pnlWindowCapacity     = 1000 // process-wide sliding window of trade pnl
	breakerWindow         = 5 * time.Minute
	breakerLatchDuration  = 5 * time.Minute
	breakerMinErrors      = 10
)

// sample is a timestamped measurement in a venue's sliding window.
type sample struct {
	at    time.Time
	value float64
}

// ringBuffer is a bounded, overwrite-on-full buffer of samples, keyed per
// venue so no venue's history can grow without bound.
type ringBuffer struct {
	data []sample
	cap  int
	next int
	size int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{data: make([]sample, capacity), cap: capacity}
}

func (b *ringBuffer) push(s sample) {
	b.data[b.next] = s
	b.next = (b.next + 1) % b.cap
	if b.size < b.cap {
		b.size++
	}
}

// within returns every sample recorded at or after cutoff.
func (b *ringBuffer) within(cutoff time.Time) []sample {
	out := make([]sample, 0, b.size)
	for i := 0; i < b.size; i++ {
		idx := (b.next - 1 - i + b.cap) % b.cap
		s := b.data[idx]
		if s.at.Before(cutoff) {
			break
		}
		out = append(out, s)
	}
	return out
}

// venueState is one venue's circuit-breaker bookkeeping.
type venueState struct {
	errors      *ringBuffer
	latencies   *ringBuffer
	breakerUntil time.Time // zero means not latched
}

// Limits is the full limit stack and circuit-breaker thresholds a Manager
// enforces.
type Limits struct {
	types.RiskLimits
	CircuitBreakerErrorRate   float64       // fraction, e.g. 0.2 for 20%
	CircuitBreakerLatencyMs   float64
}

// Manager tracks per-venue health and cumulative PnL, and answers the
// pre-trade admissibility question.
type Manager struct {
	mu      sync.Mutex
	logger  *slog.Logger
	limits  Limits
	venues  map[types.Venue]*venueState
	pnl     *ringBuffer
	runningPnL decimal.Decimal
	peakPnL    decimal.Decimal
}

// New builds a Manager with the given limits.
func New(limits Limits, logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		limits: limits,
		venues: make(map[types.Venue]*venueState),
		pnl:    newRingBuffer(pnlWindowCapacity),
	}
}

func (m *Manager) venue(v types.Venue) *venueState {
	vs, ok := m.venues[v]
	if !ok {
		vs = &venueState{
			errors:    newRingBuffer(errorWindowCapacity),
			latencies: newRingBuffer(latencyWindowCapacity),
		}
		m.venues[v] = vs
	}
	return vs
}

// RecordError registers a transient venue I/O failure for circuit-breaker
// accounting. This bookkeeping call never fails and logs nothing itself.
func (m *Manager) RecordError(v types.Venue, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venue(v).errors.push(sample{at: at})
}

// RecordLatency registers a measured request latency in milliseconds.
func (m *Manager) RecordLatency(v types.Venue, at time.Time, latencyMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venue(v).latencies.push(sample{at: at, value: latencyMs})
}

// RecordTradePnL appends a realized trade PnL to the process-wide sliding
// window and updates the running/peak PnL used by the drawdown gate.
func (m *Manager) RecordTradePnL(pnl decimal.Decimal, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, _ := pnl.Float64()
	m.pnl.push(sample{at: at, value: f})
	m.runningPnL = m.runningPnL.Add(pnl)
	if m.runningPnL.GreaterThan(m.peakPnL) {
		m.peakPnL = m.runningPnL
	}
}

// circuitBreakerTripped reports whether venue v's breaker should latch right
// now, evaluated over the most recent 5 minutes of recorded samples.
func (m *Manager) circuitBreakerTripped(v types.Venue, now time.Time) bool {
	vs := m.venue(v)
	cutoff := now.Add(-breakerWindow)

	errs := vs.errors.within(cutoff)
	if len(errs) >= breakerMinErrors {
		errorRate := float64(len(errs)) / float64(errorWindowCapacity)
		if errorRate > m.limits.CircuitBreakerErrorRate {
			return true
		}
	}

	lats := vs.latencies.within(cutoff)
	if len(lats) > 0 {
		var sum float64
		for _, s := range lats {
			sum += s.value
		}
		avg := sum / float64(len(lats))
		if avg > m.limits.CircuitBreakerLatencyMs {
			return true
		}
	}
	return false
}

// isBreakerLatched reports the venue's current latch state, auto-resetting
// it if the 5-minute latch has expired.
func (m *Manager) isBreakerLatched(v types.Venue, now time.Time) bool {
	vs := m.venue(v)
	if !vs.breakerUntil.IsZero() {
		if now.Before(vs.breakerUntil) {
			return true
		}
		vs.breakerUntil = time.Time{}
	}
	if m.circuitBreakerTripped(v, now) {
		vs.breakerUntil = now.Add(breakerLatchDuration)
		return true
	}
	return false
}

// ResetCircuitBreaker manually clears a venue's latch, independent of the
// automatic 5-minute expiry.
func (m *Manager) ResetCircuitBreaker(v types.Venue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.venue(v).breakerUntil = time.Time{}
}

func (m *Manager) checkDrawdown() (bool, string) {
	if m.peakPnL.Sign() <= 0 {
		return true, ""
	}
	drawdownPct := m.peakPnL.Sub(m.runningPnL).Div(m.peakPnL).Mul(decimal.NewFromInt(100))
	if drawdownPct.GreaterThan(m.limits.MaxDrawdownPct) {
		return false, fmt.Sprintf("drawdown %.2f%% exceeds max_drawdown_pct %s", mustFloat(drawdownPct), m.limits.MaxDrawdownPct)
	}
	return true, ""
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// IsAllowed evaluates, in spec order, circuit breaker (leg A, leg B) ->
// drawdown -> per-event exposure cap -> aggregate open-risk cap ->
// min_edge_bps. The first failure short-circuits with a human-readable
// reason.
func (m *Manager) IsAllowed(opp types.ArbOpportunity, existingEventExposureUSD, totalExposureUSD decimal.Decimal) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()

	if m.isBreakerLatched(opp.LegA.Venue, now) {
		return false, fmt.Sprintf("circuit breaker latched for venue %s", opp.LegA.Venue)
	}
	if m.isBreakerLatched(opp.LegB.Venue, now) {
		return false, fmt.Sprintf("circuit breaker latched for venue %s", opp.LegB.Venue)
	}

	if ok, reason := m.checkDrawdown(); !ok {
		return false, reason
	}

	if existingEventExposureUSD.Add(opp.Notional).GreaterThan(m.limits.MaxPositionPerEventUSD) {
		return false, fmt.Sprintf("event exposure %s + notional %s exceeds max_position_per_event_usd %s",
			existingEventExposureUSD, opp.Notional, m.limits.MaxPositionPerEventUSD)
	}

	if totalExposureUSD.Add(opp.Notional).GreaterThan(m.limits.MaxOpenRiskUSD) {
		return false, fmt.Sprintf("total exposure %s + notional %s exceeds max_open_risk_usd %s",
			totalExposureUSD, opp.Notional, m.limits.MaxOpenRiskUSD)
	}

	if opp.EdgeBps.LessThan(m.limits.MinEdgeBps) {
		return false, fmt.Sprintf("edge_bps %s below min_edge_bps %s", opp.EdgeBps, m.limits.MinEdgeBps)
	}

	return true, ""
}

// VenueHealth is a point-in-time summary of one venue's recent error rate
// and latency, surfaced on the dashboard.
type VenueHealth struct {
	Venue     types.Venue
	Healthy   bool
	LatencyMs float64
	ErrorRate float64
}

// HealthSnapshot returns a VenueHealth for every venue the Manager has seen
// activity from.
func (m *Manager) HealthSnapshot() []VenueHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-breakerWindow)

	out := make([]VenueHealth, 0, len(m.venues))
	for v, vs := range m.venues {
		errs := vs.errors.within(cutoff)
		lats := vs.latencies.within(cutoff)
		var avgLatency float64
		if len(lats) > 0 {
			var sum float64
			for _, s := range lats {
				sum += s.value
			}
			avgLatency = sum / float64(len(lats))
		}
		out = append(out, VenueHealth{
			Venue:     v,
			Healthy:   !m.isBreakerLatched(v, now),
			LatencyMs: avgLatency,
			ErrorRate: float64(len(errs)) / float64(errorWindowCapacity),
		})
	}
	return out
}

// RiskSummary is a diagnostic snapshot for logs/dashboard.
type RiskSummary struct {
	RunningPnL decimal.Decimal
	PeakPnL    decimal.Decimal
}

// GetRiskSummary returns the current running/peak PnL.
func (m *Manager) GetRiskSummary() RiskSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RiskSummary{RunningPnL: m.runningPnL, PeakPnL: m.peakPnL}
}
