package domain_test

import (
	"testing"

	"github.com/predictru/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// ── Intent translation ────────────────────────────────────────────────────────

// TestTranslateIntent verifies the intent → book mapping. NO intents land on
// the opposite side at the complement price so that one YES-denominated book
// serves both outcomes.
func TestTranslateIntent(t *testing.T) {
	p := decimal.NewFromFloat(0.30)
	comp := decimal.NewFromFloat(0.70)

	cases := []struct {
		intent    domain.OrderIntent
		wantSide  domain.OrderSide
		wantPrice decimal.Decimal
	}{
		{domain.IntentBuyYes, domain.SideBuy, p},
		{domain.IntentSellYes, domain.SideSell, p},
		{domain.IntentBuyNo, domain.SideSell, comp},
		{domain.IntentSellNo, domain.SideBuy, comp},
	}
	for _, tc := range cases {
		side, price := domain.TranslateIntent(tc.intent, p)
		if side != tc.wantSide || !price.Equal(tc.wantPrice) {
			t.Errorf("TranslateIntent(%s, %s) = (%s, %s), want (%s, %s)",
				tc.intent, p, side, price, tc.wantSide, tc.wantPrice)
		}
	}
}

func TestOrderIntent_ReservesPRC(t *testing.T) {
	if !domain.IntentBuyYes.ReservesPRC() || !domain.IntentBuyNo.ReservesPRC() {
		t.Error("buy intents should reserve PRC")
	}
	if domain.IntentSellYes.ReservesPRC() || domain.IntentSellNo.ReservesPRC() {
		t.Error("sell intents should reserve shares, not PRC")
	}
}

func TestOrderIntent_Outcome(t *testing.T) {
	if domain.IntentBuyYes.Outcome() != domain.OutcomeYes {
		t.Error("buy_yes should act on yes")
	}
	if domain.IntentSellNo.Outcome() != domain.OutcomeNo {
		t.Error("sell_no should act on no")
	}
}

// TestOrder_IntentPrice verifies recovery of the price collateral was reserved
// at. A buy_no at intent price 0.30 rests as a book sell at 0.70; releasing
// its reservation must use 0.30 again.
func TestOrder_IntentPrice(t *testing.T) {
	o := &domain.Order{
		Price:          decimal.NewFromFloat(0.70),
		OriginalIntent: domain.IntentBuyNo,
	}
	want := decimal.NewFromFloat(0.30)
	if !o.IntentPrice().Equal(want) {
		t.Errorf("IntentPrice() = %s, want %s", o.IntentPrice(), want)
	}

	o = &domain.Order{
		Price:          decimal.NewFromFloat(0.70),
		OriginalIntent: domain.IntentBuyYes,
	}
	if !o.IntentPrice().Equal(decimal.NewFromFloat(0.70)) {
		t.Errorf("yes intent price = %s, want book price", o.IntentPrice())
	}
}

// ── Order lifecycle ───────────────────────────────────────────────────────────

func TestOrder_Remaining(t *testing.T) {
	o := &domain.Order{
		Quantity:       decimal.NewFromInt(100),
		FilledQuantity: decimal.NewFromInt(40),
	}
	want := decimal.NewFromInt(60)
	if !o.Remaining().Equal(want) {
		t.Errorf("Remaining() = %s, want %s", o.Remaining(), want)
	}
}

func TestOrder_IsTerminal(t *testing.T) {
	for _, status := range []domain.OrderStatus{domain.OrderOpen, domain.OrderPartiallyFilled} {
		o := &domain.Order{Status: status}
		if o.IsTerminal() {
			t.Errorf("order in %s should not be terminal", status)
		}
	}
	for _, status := range []domain.OrderStatus{domain.OrderFilled, domain.OrderCancelled} {
		o := &domain.Order{Status: status}
		if !o.IsTerminal() {
			t.Errorf("order in %s should be terminal", status)
		}
	}
}

// ── Settlement determination ──────────────────────────────────────────────────

// TestDetermineSettlement covers the four intent pairings:
//
//	buy_yes × sell_yes → transfer (YES shares change hands)
//	sell_no × buy_no   → transfer (NO shares change hands)
//	buy_yes × buy_no   → mint     (both pay in, pair is created)
//	sell_no × sell_yes → burn     (both pay out, pair is destroyed)
func TestDetermineSettlement(t *testing.T) {
	cases := []struct {
		buyIntent  domain.OrderIntent
		sellIntent domain.OrderIntent
		want       domain.SettlementType
	}{
		{domain.IntentBuyYes, domain.IntentSellYes, domain.SettlementTransfer},
		{domain.IntentSellNo, domain.IntentBuyNo, domain.SettlementTransfer},
		{domain.IntentBuyYes, domain.IntentBuyNo, domain.SettlementMint},
		{domain.IntentSellNo, domain.IntentSellYes, domain.SettlementBurn},
	}
	for _, tc := range cases {
		got := domain.DetermineSettlement(tc.buyIntent, tc.sellIntent)
		if got != tc.want {
			t.Errorf("DetermineSettlement(%s, %s) = %s, want %s",
				tc.buyIntent, tc.sellIntent, got, tc.want)
		}
	}
}
