// Package lmsr implements the Logarithmic Market Scoring Rule (LMSR)
// automated market maker for binary prediction markets.
//
// The LMSR was proposed by Robin Hanson and provides:
//   - Bounded loss for the market maker (capped at b * ln(2) for two outcomes)
//   - Continuous pricing with liquidity at every price point
//   - Path-independent cost function
//
// Monetary values cross this package's boundary as shopspring/decimal.
// Internal transcendental math runs on float64 with the log-sum-exp trick for
// numerical stability; callers re-quantise results before they touch the
// ledger.
//
// All methods take the traded outcome's quantity first and the opposite
// outcome's quantity second. The cost function is symmetric, so pricing the
// NO side is just Price(qNo, qYes).
//
// Reference: Hanson, R. (2003) "Combinatorial Information Market Design"
package lmsr

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidLiquidity is returned when b <= 0.
	ErrInvalidLiquidity = errors.New("lmsr: liquidity parameter b must be positive")

	// Scale is the number of decimal places results are rounded to before
	// being handed back to callers.
	Scale int32 = 8
)

// searchIterations bounds the bisection in SharesForAmount. 50 halvings of a
// 10×amount bracket resolve far below one micro-share.
const searchIterations = 50

// MarketMaker implements the LMSR cost function for binary outcome markets.
// It is stateless — market quantities are passed as arguments, not stored.
type MarketMaker struct {
	b decimal.Decimal
}

// New creates an LMSR market maker with liquidity parameter b. Higher b means
// deeper liquidity and lower price impact per trade.
func New(b decimal.Decimal) (*MarketMaker, error) {
	if b.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidLiquidity
	}
	return &MarketMaker{b: b}, nil
}

// B returns the liquidity parameter.
func (m *MarketMaker) B() decimal.Decimal {
	return m.b
}

// logSumExp computes ln(exp(a) + exp(b)) without overflowing: exp(x) blows up
// float64 past x ≈ 709, so the max is factored out first and both remaining
// exponents are ≤ 0.
func logSumExp(a, b float64) float64 {
	maxVal := math.Max(a, b)
	if math.IsInf(maxVal, -1) {
		return math.Inf(-1)
	}
	return maxVal + math.Log(math.Exp(a-maxVal)+math.Exp(b-maxVal))
}

// cost is the raw cost function C(q) = b * ln(exp(q1/b) + exp(q2/b)).
func (m *MarketMaker) cost(q1, q2, b float64) float64 {
	return b * logSumExp(q1/b, q2/b)
}

// Price computes the instantaneous price (probability) of the outcome whose
// quantity is passed first:
//
//	p = exp(qOut/b) / (exp(qOut/b) + exp(qOpp/b))
//
// This is the softmax function, evaluated with max-subtraction for stability.
func (m *MarketMaker) Price(qOut, qOpp decimal.Decimal) decimal.Decimal {
	b := m.b.InexactFloat64()
	qo := qOut.InexactFloat64()
	qx := qOpp.InexactFloat64()

	maxQ := math.Max(qo, qx)
	expOut := math.Exp((qo - maxQ) / b)
	expOpp := math.Exp((qx - maxQ) / b)

	return decimal.NewFromFloat(expOut / (expOut + expOpp)).Round(Scale)
}

// Cost returns what it costs to buy shares of the first-argument outcome:
//
//	C(qOut + shares, qOpp) − C(qOut, qOpp)
func (m *MarketMaker) Cost(qOut, qOpp, shares decimal.Decimal) decimal.Decimal {
	b := m.b.InexactFloat64()
	qo := qOut.InexactFloat64()
	qx := qOpp.InexactFloat64()
	s := shares.InexactFloat64()

	c := m.cost(qo+s, qx, b) - m.cost(qo, qx, b)
	return decimal.NewFromFloat(c).Round(Scale)
}

// SharesForAmount inverts Cost by bisection: the largest share count whose
// cost stays under amount, searched in [0, 10×amount]. The lower bound is
// returned so the buyer never overpays.
func (m *MarketMaker) SharesForAmount(qOut, qOpp, amount decimal.Decimal) decimal.Decimal {
	amt := amount.InexactFloat64()
	if amt <= 0 {
		return decimal.Zero
	}

	b := m.b.InexactFloat64()
	qo := qOut.InexactFloat64()
	qx := qOpp.InexactFloat64()
	base := m.cost(qo, qx, b)

	low, high := 0.0, amt*10
	for i := 0; i < searchIterations; i++ {
		mid := (low + high) / 2
		if m.cost(qo+mid, qx, b)-base < amt {
			low = mid
		} else {
			high = mid
		}
	}
	return decimal.NewFromFloat(low).Round(Scale)
}

// SaleRevenue returns what selling shares of the first-argument outcome pays
// out:
//
//	C(qOut, qOpp) − C(qOut − shares, qOpp)
func (m *MarketMaker) SaleRevenue(qOut, qOpp, shares decimal.Decimal) decimal.Decimal {
	b := m.b.InexactFloat64()
	qo := qOut.InexactFloat64()
	qx := qOpp.InexactFloat64()
	s := shares.InexactFloat64()

	r := m.cost(qo, qx, b) - m.cost(qo-s, qx, b)
	return decimal.NewFromFloat(r).Round(Scale)
}

// MaxLoss returns the worst case subsidy the market maker can pay out:
// b * ln(2) for a binary market.
func (m *MarketMaker) MaxLoss() decimal.Decimal {
	b := m.b.InexactFloat64()
	return decimal.NewFromFloat(b * math.Ln2).Round(Scale)
}
