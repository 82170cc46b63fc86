package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position tracks a user's holding in one outcome of one market. One row per
// (user, market, outcome). ReservedShares backs open sell orders; TotalCost
// accumulates PRC spent acquiring the current shares and funds average-price
// and realised-PnL math.
type Position struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	UserID         uuid.UUID       `json:"user_id"         db:"user_id"`
	MarketID       uuid.UUID       `json:"market_id"       db:"market_id"`
	Outcome        Outcome         `json:"outcome"         db:"outcome"`
	Shares         decimal.Decimal `json:"shares"          db:"shares"`
	ReservedShares decimal.Decimal `json:"reserved_shares" db:"reserved_shares"`
	TotalCost      decimal.Decimal `json:"total_cost"      db:"total_cost"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"      db:"updated_at"`
}

// AvailableShares returns shares not locked behind open sell orders.
func (p *Position) AvailableShares() decimal.Decimal {
	return p.Shares.Sub(p.ReservedShares)
}

// AvgPrice returns the volume-weighted average acquisition price, or zero for
// an empty position.
func (p *Position) AvgPrice() decimal.Decimal {
	if p.Shares.IsZero() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.Shares)
}

// PositionView is a position joined with its market, for portfolio listings.
type PositionView struct {
	Position
	MarketTitle   string       `json:"market_title"       db:"market_title"`
	MarketStatus  MarketStatus `json:"market_status"      db:"market_status"`
	MarketOutcome *Outcome     `json:"resolution_outcome" db:"market_outcome"`
}
