package odds

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// S1: ask_yes_A=0.40, ask_no_B=0.50, ask_no_A=0.60, ask_yes_B=0.50, costs=0.0
// => edge_bps=1000, rationale mentions YES@A+NO@B.
func TestCalculateArbitrageEdge_S1(t *testing.T) {
	t.Parallel()
	edgeBps, _, rationale := CalculateArbitrageEdge(d("0.40"), d("0.50"), d("0.60"), d("0.50"), d("0.0"))

	if !edgeBps.Equal(d("1000")) {
		t.Errorf("edgeBps = %s, want 1000", edgeBps)
	}
	if rationale != "YES@A+NO@B" {
		t.Errorf("rationale = %q, want YES@A+NO@B", rationale)
	}
}

// S2: bid=0.4, ask=0.6 => spread_bps=2000, mid=0.5.
func TestCalculateSpreadBps_S2(t *testing.T) {
	t.Parallel()
	spread := CalculateSpreadBps(d("0.4"), d("0.6"))
	if !spread.Equal(d("2000")) {
		t.Errorf("spread = %s, want 2000", spread)
	}

	mid := d("0.4").Add(d("0.6")).Div(decimal.NewFromInt(2))
	if !mid.Equal(d("0.5")) {
		t.Errorf("mid = %s, want 0.5", mid)
	}
}

func TestPriceProbabilityRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []decimal.Decimal{d("0"), d("0.01"), d("0.37"), d("0.5"), d("0.99"), d("1")}
	for _, price := range cases {
		p := PriceToProbabilityYes(price)
		back := ProbabilityToPrice(p)
		if !back.Equal(price) {
			t.Errorf("round-trip(%s) = %s", price, back)
		}
	}
}

func TestKellyFractionCappedAt25Pct(t *testing.T) {
	t.Parallel()
	cases := []struct {
		edgeBps decimal.Decimal
		want    decimal.Decimal
	}{
		{d("100"), d("0.01")},
		{d("2500"), d("0.25")},
		{d("5000"), d("0.25")}, // well above cap, must clamp
		{d("-100"), d("0")},
	}
	for _, c := range cases {
		got := KellyFraction(c.edgeBps)
		if !got.Equal(c.want) {
			t.Errorf("KellyFraction(%s) = %s, want %s", c.edgeBps, got, c.want)
		}
		if got.GreaterThan(d("0.25")) {
			t.Errorf("KellyFraction(%s) = %s exceeds 0.25 cap", c.edgeBps, got)
		}
	}
}

func TestMinExecutableQty(t *testing.T) {
	t.Parallel()
	qty := MinExecutableQty(d("50"), d("40"), d("100"), d("0.4"), d("0.5"))
	// capital cap 100 / (0.4+0.5) = 111.11, clipped by sizeNo=40
	if !qty.Equal(d("40")) {
		t.Errorf("qty = %s, want 40", qty)
	}
}

func TestMinExecutableQtyZeroDenominator(t *testing.T) {
	t.Parallel()
	qty := MinExecutableQty(d("50"), d("40"), d("100"), d("0"), d("0"))
	if !qty.IsZero() {
		t.Errorf("qty = %s, want 0", qty)
	}
}

func TestRoundToTick(t *testing.T) {
	t.Parallel()
	got := RoundToTick(d("0.4731"), d("0.01"))
	if !got.Equal(d("0.47")) {
		t.Errorf("RoundToTick = %s, want 0.47", got)
	}

	// non-positive tick is identity
	identity := RoundToTick(d("0.4731"), d("0"))
	if !identity.Equal(d("0.4731")) {
		t.Errorf("RoundToTick with tick<=0 = %s, want identity", identity)
	}
}

func TestIsArbitrageProfitable(t *testing.T) {
	t.Parallel()
	if !IsArbitrageProfitable(d("100"), d("80"), d("200"), d("100")) {
		t.Error("expected profitable")
	}
	if IsArbitrageProfitable(d("50"), d("80"), d("200"), d("100")) {
		t.Error("expected unprofitable: edge below minimum")
	}
	if IsArbitrageProfitable(d("100"), d("80"), d("50"), d("100")) {
		t.Error("expected unprofitable: notional below minimum")
	}
}
