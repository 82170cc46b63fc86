package domain_test

import (
	"testing"
	"time"

	"github.com/predictru/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// ── Market state helpers ──────────────────────────────────────────────────────

func TestMarket_IsOpen(t *testing.T) {
	m := &domain.Market{Status: domain.StatusOpen}
	if !m.IsOpen() {
		t.Error("expected open market to be open")
	}
	m.Status = domain.StatusTradingClosed
	if m.IsOpen() {
		t.Error("trading_closed market should not be open")
	}
	m.Status = domain.StatusResolved
	if m.IsOpen() {
		t.Error("resolved market should not be open")
	}
}

func TestMarket_CanResolve(t *testing.T) {
	for _, status := range []domain.MarketStatus{domain.StatusOpen, domain.StatusTradingClosed} {
		m := &domain.Market{Status: status}
		if !m.CanResolve() {
			t.Errorf("market in %s should be resolvable", status)
		}
	}
	for _, status := range []domain.MarketStatus{domain.StatusResolved, domain.StatusCancelled} {
		m := &domain.Market{Status: status}
		if m.CanResolve() {
			t.Errorf("market in %s should not be resolvable", status)
		}
	}
}

func TestMarket_LastPriceOrMid(t *testing.T) {
	m := &domain.Market{}
	if !m.LastPriceOrMid().Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("untraded market mid = %s, want 0.5", m.LastPriceOrMid())
	}
	p := decimal.NewFromFloat(0.63)
	m.LastTradePriceYes = &p
	if !m.LastPriceOrMid().Equal(p) {
		t.Errorf("LastPriceOrMid() = %s, want %s", m.LastPriceOrMid(), p)
	}
}

func TestMarket_TimeLeft(t *testing.T) {
	now := time.Now().UTC()
	m := &domain.Market{ClosesAt: now.Add(2 * time.Minute)}
	tl := m.TimeLeft()
	if tl <= 0 || tl > 2*time.Minute+time.Second {
		t.Errorf("TimeLeft() = %v, expected ~2m0s", tl)
	}
	m.ClosesAt = now.Add(-time.Minute)
	if m.TimeLeft() != 0 {
		t.Errorf("past market TimeLeft() = %v, want 0", m.TimeLeft())
	}
}

// ── Outcome validity ──────────────────────────────────────────────────────────

func TestOutcome_IsValid(t *testing.T) {
	if !domain.OutcomeYes.IsValid() {
		t.Error("yes should be valid")
	}
	if !domain.OutcomeNo.IsValid() {
		t.Error("no should be valid")
	}
	if domain.Outcome("maybe").IsValid() {
		t.Error("maybe should not be valid")
	}
}

func TestOutcome_Opposite(t *testing.T) {
	if domain.OutcomeYes.Opposite() != domain.OutcomeNo {
		t.Error("opposite of yes should be no")
	}
	if domain.OutcomeNo.Opposite() != domain.OutcomeYes {
		t.Error("opposite of no should be yes")
	}
}

// ── User balance helpers ──────────────────────────────────────────────────────

func TestUser_Available(t *testing.T) {
	u := &domain.User{
		Balance:         decimal.NewFromInt(1000),
		ReservedBalance: decimal.NewFromInt(300),
	}
	want := decimal.NewFromInt(700)
	if !u.Available().Equal(want) {
		t.Errorf("Available() = %s, want %s", u.Available(), want)
	}
}

func TestUser_DisplayName(t *testing.T) {
	u := &domain.User{FirstName: "Ivan"}
	if u.DisplayName() != "Ivan" {
		t.Errorf("DisplayName() = %q, want Ivan", u.DisplayName())
	}
	handle := "ivan_trades"
	u.Username = &handle
	if u.DisplayName() != "ivan_trades" {
		t.Errorf("DisplayName() = %q, want ivan_trades", u.DisplayName())
	}
}

// ── Position helpers ──────────────────────────────────────────────────────────

func TestPosition_AvailableShares(t *testing.T) {
	p := &domain.Position{
		Shares:         decimal.NewFromInt(50),
		ReservedShares: decimal.NewFromInt(20),
	}
	want := decimal.NewFromInt(30)
	if !p.AvailableShares().Equal(want) {
		t.Errorf("AvailableShares() = %s, want %s", p.AvailableShares(), want)
	}
}

func TestPosition_AvgPrice(t *testing.T) {
	p := &domain.Position{
		Shares:    decimal.NewFromInt(100),
		TotalCost: decimal.NewFromInt(55),
	}
	want := decimal.NewFromFloat(0.55)
	if !p.AvgPrice().Equal(want) {
		t.Errorf("AvgPrice() = %s, want %s", p.AvgPrice(), want)
	}

	empty := &domain.Position{}
	if !empty.AvgPrice().IsZero() {
		t.Errorf("empty position AvgPrice() = %s, want 0", empty.AvgPrice())
	}
}
