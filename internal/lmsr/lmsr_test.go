package lmsr_test

import (
	"testing"

	"github.com/predictru/backend/internal/lmsr"
	"github.com/shopspring/decimal"
)

func newMaker(t *testing.T, b int64) *lmsr.MarketMaker {
	t.Helper()
	m, err := lmsr.New(decimal.NewFromInt(b))
	if err != nil {
		t.Fatalf("New(%d): %v", b, err)
	}
	return m
}

func approxEqual(a, b decimal.Decimal, tol string) bool {
	return a.Sub(b).Abs().LessThanOrEqual(decimal.RequireFromString(tol))
}

// ── Construction ──────────────────────────────────────────────────────────────

func TestNew_RejectsNonPositiveB(t *testing.T) {
	for _, b := range []int64{0, -5} {
		if _, err := lmsr.New(decimal.NewFromInt(b)); err != lmsr.ErrInvalidLiquidity {
			t.Errorf("New(%d) err = %v, want ErrInvalidLiquidity", b, err)
		}
	}
}

// ── Pricing ───────────────────────────────────────────────────────────────────

func TestPrice_FreshMarketIsEven(t *testing.T) {
	m := newMaker(t, 100)
	zero := decimal.Zero
	half := decimal.RequireFromString("0.5")

	if p := m.Price(zero, zero); !approxEqual(p, half, "0.000001") {
		t.Errorf("fresh market price = %s, want 0.5", p)
	}
}

func TestPrice_SumsToOne(t *testing.T) {
	m := newMaker(t, 100)
	qYes := decimal.NewFromInt(50)
	qNo := decimal.NewFromInt(10)

	pYes := m.Price(qYes, qNo)
	pNo := m.Price(qNo, qYes)
	if !approxEqual(pYes.Add(pNo), decimal.NewFromInt(1), "0.000001") {
		t.Errorf("prices sum to %s, want 1", pYes.Add(pNo))
	}
	if pYes.LessThanOrEqual(pNo) {
		t.Errorf("heavier YES side should price above NO: %s vs %s", pYes, pNo)
	}
}

// TestPrice_StableAtExtremeQuantities drives the softmax far past the range
// where a naive exp() overflows float64.
func TestPrice_StableAtExtremeQuantities(t *testing.T) {
	m := newMaker(t, 100)
	qYes := decimal.NewFromInt(10000)
	qNo := decimal.Zero

	pYes := m.Price(qYes, qNo)
	pNo := m.Price(qNo, qYes)

	if pYes.LessThan(decimal.Zero) || pYes.GreaterThan(decimal.NewFromInt(1)) {
		t.Errorf("extreme price out of [0,1]: %s", pYes)
	}
	if !approxEqual(pYes.Add(pNo), decimal.NewFromInt(1), "0.000001") {
		t.Errorf("extreme prices sum to %s, want 1", pYes.Add(pNo))
	}
}

// ── Cost & inversion ──────────────────────────────────────────────────────────

func TestCost_BuyRaisesPrice(t *testing.T) {
	m := newMaker(t, 100)
	zero := decimal.Zero

	cost := m.Cost(zero, zero, decimal.NewFromInt(10))
	if cost.LessThanOrEqual(decimal.Zero) {
		t.Fatalf("cost of buying should be positive, got %s", cost)
	}

	before := m.Price(zero, zero)
	after := m.Price(decimal.NewFromInt(10), zero)
	if !after.GreaterThan(before) {
		t.Errorf("price should rise after a buy: %s → %s", before, after)
	}
}

// TestSharesForAmount_InvertsCost checks the bisection against the forward
// cost function: spending the quoted amount buys shares whose exact cost sits
// just under the amount.
func TestSharesForAmount_InvertsCost(t *testing.T) {
	m := newMaker(t, 100)
	zero := decimal.Zero
	amount := decimal.NewFromInt(100)

	shares := m.SharesForAmount(zero, zero, amount)
	if shares.LessThanOrEqual(decimal.Zero) {
		t.Fatalf("SharesForAmount(100) = %s, want > 0", shares)
	}

	cost := m.Cost(zero, zero, shares)
	if cost.GreaterThan(amount) {
		t.Errorf("cost %s exceeds spend %s", cost, amount)
	}
	if !approxEqual(cost, amount, "0.01") {
		t.Errorf("cost %s should be within 0.01 of %s", cost, amount)
	}
}

func TestSharesForAmount_ZeroAmount(t *testing.T) {
	m := newMaker(t, 100)
	if s := m.SharesForAmount(decimal.Zero, decimal.Zero, decimal.Zero); !s.IsZero() {
		t.Errorf("zero spend bought %s shares", s)
	}
}

// TestSaleRevenue_RoundTrip verifies path independence: buying shares and
// selling them straight back returns the same amount.
func TestSaleRevenue_RoundTrip(t *testing.T) {
	m := newMaker(t, 100)
	zero := decimal.Zero
	shares := decimal.NewFromInt(10)

	buyCost := m.Cost(zero, zero, shares)
	revenue := m.SaleRevenue(decimal.NewFromInt(10), zero, shares)

	if !approxEqual(buyCost, revenue, "0.000001") {
		t.Errorf("round trip: buy %s, sell back %s", buyCost, revenue)
	}
}

// ── Bounds ────────────────────────────────────────────────────────────────────

func TestMaxLoss(t *testing.T) {
	m := newMaker(t, 100)
	// b·ln2 = 69.3147...
	want := decimal.RequireFromString("69.31471806")
	if got := m.MaxLoss(); !approxEqual(got, want, "0.00000001") {
		t.Errorf("MaxLoss() = %s, want %s", got, want)
	}
}
