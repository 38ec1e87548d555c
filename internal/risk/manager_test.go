package risk

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbbot/internal/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testLimits() Limits {
	return Limits{
		RiskLimits: types.RiskLimits{
			MaxOpenRiskUSD:         d("50000"),
			MaxPerTradeUSD:         d("1000"),
			MaxPositionPerEventUSD: d("5000"),
			MaxDrawdownPct:         d("20"),
			MinEdgeBps:             d("80"),
			MaxSlippageBps:         d("25"),
		},
		CircuitBreakerErrorRate: 0.2,
		CircuitBreakerLatencyMs: 2000,
	}
}

func newTestManager() *Manager {
	return New(testLimits(), slog.Default())
}

func testOpportunity(notional, edgeBps decimal.Decimal) types.ArbOpportunity {
	return types.ArbOpportunity{
		EventID: "ELECTION:US:PRESIDENT:2028:TRUMP",
		LegA:    types.OrderRequest{Venue: types.VenuePolymarket},
		LegB:    types.OrderRequest{Venue: types.VenueKalshi},
		Notional: notional,
		EdgeBps:  edgeBps,
	}
}

// S4: existing event exposure 4,800 USD, max_per_event=5,000, opportunity
// notional 400 USD => is_allowed returns false with reason referencing the
// per-event cap.
func TestIsAllowed_PerEventCap_S4(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	opp := testOpportunity(d("400"), d("100"))

	allowed, reason := m.IsAllowed(opp, d("4800"), d("4800"))
	if allowed {
		t.Fatal("expected rejection from per-event cap")
	}
	if reason == "" {
		t.Fatal("expected a non-empty reason")
	}
}

func TestIsAllowed_MinEdgeGate(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	opp := testOpportunity(d("100"), d("50")) // below MinEdgeBps=80

	allowed, _ := m.IsAllowed(opp, d("0"), d("0"))
	if allowed {
		t.Fatal("expected rejection: edge below min_edge_bps")
	}
}

func TestIsAllowed_AggregateOpenRiskCap(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	opp := testOpportunity(d("1000"), d("100"))

	allowed, _ := m.IsAllowed(opp, d("0"), d("49500"))
	if allowed {
		t.Fatal("expected rejection: total exposure exceeds max_open_risk_usd")
	}
}

func TestIsAllowed_PassesAllGates(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	opp := testOpportunity(d("400"), d("100"))

	allowed, reason := m.IsAllowed(opp, d("0"), d("0"))
	if !allowed {
		t.Fatalf("expected admission, got rejection: %s", reason)
	}
}

// S7: circuit-breaker-latched venue causes is_allowed to return false for
// any opportunity touching it, until 5 minutes after latch.
func TestCircuitBreakerLatch_S7(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	now := time.Now()

	for i := 0; i < 25; i++ {
		m.RecordError(types.VenuePolymarket, now)
	}

	opp := testOpportunity(d("400"), d("100"))
	allowed, reason := m.IsAllowed(opp, d("0"), d("0"))
	if allowed {
		t.Fatal("expected rejection: circuit breaker should be tripped")
	}
	if reason == "" {
		t.Fatal("expected a reason referencing the circuit breaker")
	}
}

func TestCircuitBreakerDoesNotTripBelowErrorFloor(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	now := time.Now()

	// fewer than breakerMinErrors (10): must not trip regardless of rate.
	for i := 0; i < 5; i++ {
		m.RecordError(types.VenuePolymarket, now)
	}

	opp := testOpportunity(d("400"), d("100"))
	allowed, _ := m.IsAllowed(opp, d("0"), d("0"))
	if !allowed {
		t.Fatal("circuit breaker should not trip below the minimum error floor")
	}
}

func TestDrawdownGate(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	now := time.Now()

	m.RecordTradePnL(d("1000"), now) // peak = 1000
	m.RecordTradePnL(d("-300"), now) // running = 700, drawdown = 30% > 20%

	opp := testOpportunity(d("400"), d("100"))
	allowed, reason := m.IsAllowed(opp, d("0"), d("0"))
	if allowed {
		t.Fatal("expected rejection from drawdown gate")
	}
	if reason == "" {
		t.Fatal("expected a reason referencing drawdown")
	}
}

func TestDrawdownGatePassesWithNoPeakYet(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	opp := testOpportunity(d("400"), d("100"))
	allowed, reason := m.IsAllowed(opp, d("0"), d("0"))
	if !allowed {
		t.Fatalf("expected admission with no PnL history yet, got: %s", reason)
	}
}

func TestResetCircuitBreaker(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	now := time.Now()
	for i := 0; i < 25; i++ {
		m.RecordError(types.VenuePolymarket, now)
	}
	opp := testOpportunity(d("400"), d("100"))

	if allowed, _ := m.IsAllowed(opp, d("0"), d("0")); allowed {
		t.Fatal("expected rejection before reset")
	}

	m.ResetCircuitBreaker(types.VenuePolymarket)
	// Latch cleared, but the same 25 stale errors are still in the window,
	// so the breaker immediately re-evaluates and re-trips — matching the
	// manager's "evaluate on every check" semantics rather than pretending
	// the errors never happened.
	allowed, _ := m.IsAllowed(opp, d("0"), d("0"))
	if allowed {
		t.Fatal("expected breaker to re-trip: underlying error samples are unchanged by a manual reset")
	}
}
