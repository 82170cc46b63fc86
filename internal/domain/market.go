// Package domain defines the core business entities and types for the
// PredictRu binary prediction-market system.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// MarketStatus represents the lifecycle state of a market.
// Transitions are monotonic; resolved and cancelled are terminal.
type MarketStatus string

const (
	StatusOpen          MarketStatus = "open"           // accepting trades
	StatusTradingClosed MarketStatus = "trading_closed" // past closes_at, awaiting resolution
	StatusResolved      MarketStatus = "resolved"       // outcome set, payouts sent
	StatusCancelled     MarketStatus = "cancelled"      // voided; positions refunded at cost
)

// Mechanism selects which trading venue a market runs on.
type Mechanism string

const (
	MechanismLMSR Mechanism = "lmsr" // automated market maker
	MechanismCLOB Mechanism = "clob" // continuous limit order book
)

// Outcome represents one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// IsValid returns true if the outcome is a recognised side.
func (o Outcome) IsValid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the other side of the binary pair.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Book price bounds. Orders outside (MinBookPrice, MaxBookPrice) are rejected;
// a filled YES price of 1.00 or 0.00 only ever happens at resolution.
var (
	MinBookPrice = decimal.NewFromFloat(0.01)
	MaxBookPrice = decimal.NewFromFloat(0.99)
)

// ──────────────────────────────────────────────────────────────────────────────
// Market
// ──────────────────────────────────────────────────────────────────────────────

// Market represents a single binary question traded either against the LMSR
// market maker or on the order book.
type Market struct {
	ID          uuid.UUID    `json:"id"          db:"id"`
	Title       string       `json:"title"       db:"title"`
	Description string       `json:"description" db:"description"`
	Category    string       `json:"category"    db:"category"`
	ImageURL    *string      `json:"image_url"   db:"image_url"`
	Status      MarketStatus `json:"status"      db:"status"`
	Mechanism   Mechanism    `json:"mechanism"   db:"mechanism"`

	// LMSR state. QYes/QNo are outstanding shares per outcome; LiquidityB is
	// Hanson's b parameter (larger b = deeper market).
	QYes       decimal.Decimal `json:"q_yes"       db:"q_yes"`
	QNo        decimal.Decimal `json:"q_no"        db:"q_no"`
	LiquidityB decimal.Decimal `json:"liquidity_b" db:"liquidity_b"`

	// CLOB state: YES price of the most recent fill, nil before the first one.
	LastTradePriceYes *decimal.Decimal `json:"last_trade_price_yes" db:"last_trade_price_yes"`

	MinBet decimal.Decimal `json:"min_bet" db:"min_bet"`
	MaxBet decimal.Decimal `json:"max_bet" db:"max_bet"`

	TotalVolume  decimal.Decimal `json:"total_volume"  db:"total_volume"`
	TotalTraders int             `json:"total_traders" db:"total_traders"`

	ClosesAt time.Time `json:"closes_at" db:"closes_at"`

	// ResolutionSource is the human-readable rules text stating how the
	// market will be judged.
	ResolutionSource  string     `json:"resolution_source"  db:"resolution_source"`
	ResolutionOutcome *Outcome   `json:"resolution_outcome" db:"resolution_outcome"`
	ResolvedAt        *time.Time `json:"resolved_at"        db:"resolved_at"`

	CreatedBy  *uuid.UUID `json:"created_by"  db:"created_by"`
	IsFeatured bool       `json:"is_featured" db:"is_featured"`
	CreatedAt  time.Time  `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"  db:"updated_at"`
}

// IsOpen returns true while the market is accepting trades.
func (m *Market) IsOpen() bool {
	return m.Status == StatusOpen
}

// IsTerminal returns true once the market can no longer change state.
func (m *Market) IsTerminal() bool {
	return m.Status == StatusResolved || m.Status == StatusCancelled
}

// CanResolve returns true while a resolution outcome may still be set.
func (m *Market) CanResolve() bool {
	return m.Status == StatusOpen || m.Status == StatusTradingClosed
}

// LastPriceOrMid returns the last CLOB trade price, or 0.50 before any fill.
func (m *Market) LastPriceOrMid() decimal.Decimal {
	if m.LastTradePriceYes == nil {
		return decimal.NewFromFloat(0.5)
	}
	return *m.LastTradePriceYes
}

// TimeLeft returns the duration remaining until the market closes.
// Returns 0 if the closing time has already passed.
func (m *Market) TimeLeft() time.Duration {
	remaining := time.Until(m.ClosesAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ──────────────────────────────────────────────────────────────────────────────
// PriceHistory
// ──────────────────────────────────────────────────────────────────────────────

// PricePoint is one append-only sample of an LMSR market's state, written
// after every AMM trade.
type PricePoint struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	MarketID  uuid.UUID       `json:"market_id"  db:"market_id"`
	PriceYes  decimal.Decimal `json:"price_yes"  db:"price_yes"`
	PriceNo   decimal.Decimal `json:"price_no"   db:"price_no"`
	QYes      decimal.Decimal `json:"q_yes"      db:"q_yes"`
	QNo       decimal.Decimal `json:"q_no"       db:"q_no"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketSummary — lightweight read model for listings and WS broadcasts
// ──────────────────────────────────────────────────────────────────────────────

// MarketSummary is a derived, read-only view of a Market. PriceYes comes from
// the LMSR engine for AMM markets and from the last fill for CLOB markets.
type MarketSummary struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Category     string          `json:"category"`
	Status       MarketStatus    `json:"status"`
	Mechanism    Mechanism       `json:"mechanism"`
	PriceYes     decimal.Decimal `json:"price_yes"`
	PriceNo      decimal.Decimal `json:"price_no"`
	TotalVolume  decimal.Decimal `json:"total_volume"`
	TotalTraders int             `json:"total_traders"`
	IsFeatured   bool            `json:"is_featured"`
	ClosesAt     time.Time       `json:"closes_at"`
	TimeLeftSec  int64           `json:"time_left_sec"`
}

// ToSummary builds a MarketSummary with the supplied YES probability.
func (m *Market) ToSummary(priceYes decimal.Decimal) MarketSummary {
	return MarketSummary{
		ID:           m.ID,
		Title:        m.Title,
		Category:     m.Category,
		Status:       m.Status,
		Mechanism:    m.Mechanism,
		PriceYes:     priceYes,
		PriceNo:      decimal.NewFromInt(1).Sub(priceYes),
		TotalVolume:  m.TotalVolume,
		TotalTraders: m.TotalTraders,
		IsFeatured:   m.IsFeatured,
		ClosesAt:     m.ClosesAt,
		TimeLeftSec:  int64(m.TimeLeft().Seconds()),
	}
}
