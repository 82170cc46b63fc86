package domain_test

import (
	"testing"

	"github.com/predictru/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// ── Rounding ──────────────────────────────────────────────────────────────────

// TestRoundPRC_HalfEven verifies banker's rounding at the ledger boundary:
// ties go to the even neighbour, so .345 → .34 but .355 → .36.
func TestRoundPRC_HalfEven(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2.345", "2.34"},
		{"2.355", "2.36"},
		{"2.344", "2.34"},
		{"2.346", "2.35"},
		{"0.005", "0"},
		{"0.015", "0.02"},
		{"-2.345", "-2.34"},
	}
	for _, tc := range cases {
		got := domain.RoundPRC(decimal.RequireFromString(tc.in))
		if got.String() != tc.want {
			t.Errorf("RoundPRC(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestRoundShares(t *testing.T) {
	in := decimal.RequireFromString("49.2448979591836735")
	want := decimal.RequireFromString("49.244898")
	if got := domain.RoundShares(in); !got.Equal(want) {
		t.Errorf("RoundShares(%s) = %s, want %s", in, got, want)
	}
}

// ── Fees ──────────────────────────────────────────────────────────────────────

// TestFeeOn matches the book-transfer scenario: 2% on a 6.00 PRC fill.
func TestFeeOn(t *testing.T) {
	value := decimal.RequireFromString("6.00")
	rate := decimal.RequireFromString("0.02")
	want := decimal.RequireFromString("0.12")
	if got := domain.FeeOn(value, rate); !got.Equal(want) {
		t.Errorf("FeeOn(6.00, 2%%) = %s, want %s", got, want)
	}
}

// TestSplitFee verifies the halves always sum back to the exact fee, with the
// rounding remainder going to the second half.
//
//	fee = 0.10 → 0.05 + 0.05
//	fee = 0.05 → 0.02 + 0.03   (0.025 rounds to even)
//	fee = 0.03 → 0.02 + 0.01
func TestSplitFee(t *testing.T) {
	cases := []struct {
		fee       string
		wantHalf  string
		wantOther string
	}{
		{"0.10", "0.05", "0.05"},
		{"0.05", "0.02", "0.03"},
		{"0.03", "0.02", "0.01"},
		{"0.01", "0", "0.01"},
		{"0", "0", "0"},
	}
	for _, tc := range cases {
		half, other := domain.SplitFee(decimal.RequireFromString(tc.fee))
		if half.String() != tc.wantHalf || other.String() != tc.wantOther {
			t.Errorf("SplitFee(%s) = (%s, %s), want (%s, %s)",
				tc.fee, half, other, tc.wantHalf, tc.wantOther)
		}
		if !half.Add(other).Equal(decimal.RequireFromString(tc.fee)) {
			t.Errorf("SplitFee(%s): halves sum to %s", tc.fee, half.Add(other))
		}
	}
}

// TestMintEconomics works the two-sided mint example end to end. A buy_yes at
// 0.55 for 5 matched against a buy_no at 0.45 (book sell at 0.55) deposits
// exactly qty PRC into the pair:
//
//	yes side pays 0.55 × 5 = 2.75
//	no side pays  0.45 × 5 = 2.25
//	deposited              = 5.00
//	fee = 5.00 × 2%        = 0.10 → halves 0.05 / 0.05
func TestMintEconomics(t *testing.T) {
	price := decimal.RequireFromString("0.55")
	qty := decimal.NewFromInt(5)
	one := decimal.NewFromInt(1)

	yesCost := price.Mul(qty)
	noCost := one.Sub(price).Mul(qty)
	deposited := yesCost.Add(noCost)

	if !deposited.Equal(qty) {
		t.Fatalf("mint deposit = %s, want %s", deposited, qty)
	}

	fee := domain.FeeOn(deposited, decimal.RequireFromString("0.02"))
	if !fee.Equal(decimal.RequireFromString("0.10")) {
		t.Errorf("mint fee = %s, want 0.10", fee)
	}
	half, other := domain.SplitFee(fee)
	if !half.Equal(decimal.RequireFromString("0.05")) || !other.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("mint fee halves = %s/%s, want 0.05/0.05", half, other)
	}

	wantYes := decimal.RequireFromString("2.75")
	wantNo := decimal.RequireFromString("2.25")
	if !yesCost.Equal(wantYes) || !noCost.Equal(wantNo) {
		t.Errorf("mint costs = %s/%s, want %s/%s", yesCost, noCost, wantYes, wantNo)
	}
}

func TestClampZero(t *testing.T) {
	neg := decimal.RequireFromString("-0.01")
	if !domain.ClampZero(neg).IsZero() {
		t.Errorf("ClampZero(%s) = %s, want 0", neg, domain.ClampZero(neg))
	}
	pos := decimal.RequireFromString("3.50")
	if !domain.ClampZero(pos).Equal(pos) {
		t.Errorf("ClampZero(%s) = %s, want %s", pos, domain.ClampZero(pos), pos)
	}
}
