package service

import (
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/config"
)

// one is the unit payout of a winning share, reused by price complements and
// settlement math.
var one = decimal.NewFromInt(1)

// feeRate converts the configured percentage (e.g. 2.0) into a multiplier
// (0.02).
func feeRate(cfg *config.Config) decimal.Decimal {
	return decimal.NewFromFloat(cfg.Trading.FeePercent).Div(decimal.NewFromInt(100))
}

// truncateRunes shortens s to at most n runes. Transaction descriptions cap
// user-supplied titles this way.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
