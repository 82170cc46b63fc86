package domain

import "github.com/shopspring/decimal"

// ──────────────────────────────────────────────────────────────────────────────
// Fixed-point quantisation
// ──────────────────────────────────────────────────────────────────────────────

// PRC amounts carry two fractional digits, share quantities six. Rounding is
// half-to-even, applied exactly once at each ledger boundary.
const (
	PRCPlaces   int32 = 2
	SharePlaces int32 = 6
)

// RoundPRC quantises a PRC amount to two decimal places.
func RoundPRC(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(PRCPlaces)
}

// RoundShares quantises a share quantity to six decimal places.
func RoundShares(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(SharePlaces)
}

// RoundPrice quantises a probability/price to four decimal places.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(4)
}

// FeeOn computes the trading fee on a PRC value at the given rate, quantised
// to cents.
func FeeOn(value, rate decimal.Decimal) decimal.Decimal {
	return RoundPRC(value.Mul(rate))
}

// SplitFee divides a fee between two parties so the halves always sum back to
// the exact total: half = round(fee/2), other = fee − half.
func SplitFee(fee decimal.Decimal) (half, other decimal.Decimal) {
	half = RoundPRC(fee.Div(decimal.NewFromInt(2)))
	return half, fee.Sub(half)
}

// ClampZero returns d, floored at zero. Used when releasing reservations so a
// rounding remainder can never drive a reserved column negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
