package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// OrderSide is the side an order rests on after intent translation. The book
// is always two-sided in YES terms.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus represents the lifecycle state of an order.
// filled and cancelled are terminal; status=filled ⇔ filled_quantity=quantity.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
)

// OrderIntent is the user-facing action. The book stores it alongside the
// translated side/price because settlement depends on the intent pair, not on
// the book sides.
type OrderIntent string

const (
	IntentBuyYes  OrderIntent = "buy_yes"
	IntentBuyNo   OrderIntent = "buy_no"
	IntentSellYes OrderIntent = "sell_yes"
	IntentSellNo  OrderIntent = "sell_no"
)

// IsValid returns true for a recognised intent.
func (i OrderIntent) IsValid() bool {
	switch i {
	case IntentBuyYes, IntentBuyNo, IntentSellYes, IntentSellNo:
		return true
	}
	return false
}

// Outcome returns the outcome the intent acts on.
func (i OrderIntent) Outcome() Outcome {
	if i == IntentBuyNo || i == IntentSellNo {
		return OutcomeNo
	}
	return OutcomeYes
}

// ReservesPRC returns true for intents whose collateral is play-currency
// (buy_yes, buy_no). The share-acquiring intents reserve PRC; the
// share-disposing intents (sell_yes, sell_no) reserve shares instead.
func (i OrderIntent) ReservesPRC() bool {
	return i == IntentBuyYes || i == IntentBuyNo
}

// TranslateIntent maps a user intent at its intent price to the book side and
// book price (always YES terms):
//
//	buy_yes  → buy  @ p        sell_yes → sell @ p
//	buy_no   → sell @ 1−p      sell_no  → buy  @ 1−p
func TranslateIntent(intent OrderIntent, price decimal.Decimal) (OrderSide, decimal.Decimal) {
	one := decimal.NewFromInt(1)
	switch intent {
	case IntentBuyYes:
		return SideBuy, price
	case IntentSellYes:
		return SideSell, price
	case IntentBuyNo:
		return SideSell, one.Sub(price)
	default: // IntentSellNo
		return SideBuy, one.Sub(price)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Order
// ──────────────────────────────────────────────────────────────────────────────

// Order is a resting or historical CLOB order. Price is the BOOK price (YES
// terms); the intent price is recovered via IntentPrice when releasing
// reservations.
type Order struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	UserID         uuid.UUID       `json:"user_id"         db:"user_id"`
	MarketID       uuid.UUID       `json:"market_id"       db:"market_id"`
	Side           OrderSide       `json:"side"            db:"side"`
	Price          decimal.Decimal `json:"price"           db:"price"`
	Quantity       decimal.Decimal `json:"quantity"        db:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity" db:"filled_quantity"`
	Status         OrderStatus     `json:"status"          db:"status"`
	OriginalIntent OrderIntent     `json:"original_intent" db:"original_intent"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"      db:"updated_at"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsTerminal returns true once the order can no longer fill.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderFilled || o.Status == OrderCancelled
}

// IntentPrice returns the per-unit price in the order's own outcome terms:
// the stored book price for YES intents, 1−price for NO intents. Collateral
// was reserved at this price, so releases use it too.
func (o *Order) IntentPrice() decimal.Decimal {
	if o.OriginalIntent.Outcome() == OutcomeNo {
		return decimal.NewFromInt(1).Sub(o.Price)
	}
	return o.Price
}

// ──────────────────────────────────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────────────────────────────────

// SettlementType identifies how a fill moves value. The string forms are
// wire-stable.
type SettlementType string

const (
	SettlementTransfer SettlementType = "transfer" // shares change hands
	SettlementMint     SettlementType = "mint"     // YES+NO pair created from 1 PRC
	SettlementBurn     SettlementType = "burn"     // YES+NO pair destroyed for 1 PRC
)

// DetermineSettlement derives the settlement mode from the matched pair of
// original intents (book-buy side first):
//
//	buy_yes × sell_yes → transfer (YES)
//	sell_no × buy_no   → transfer (NO)
//	buy_yes × buy_no   → mint
//	sell_no × sell_yes → burn
func DetermineSettlement(buyIntent, sellIntent OrderIntent) SettlementType {
	switch {
	case buyIntent == IntentBuyYes && sellIntent == IntentSellYes:
		return SettlementTransfer
	case buyIntent == IntentSellNo && sellIntent == IntentBuyNo:
		return SettlementTransfer
	case buyIntent == IntentSellNo && sellIntent == IntentSellYes:
		return SettlementBurn
	default: // buy_yes × buy_no
		return SettlementMint
	}
}

// TradeFill is the immutable record of one matched fill. Price is the book
// (YES) price the fill executed at — always the resting order's price.
type TradeFill struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	MarketID       uuid.UUID       `json:"market_id"       db:"market_id"`
	BuyOrderID     uuid.UUID       `json:"buy_order_id"    db:"buy_order_id"`
	SellOrderID    uuid.UUID       `json:"sell_order_id"   db:"sell_order_id"`
	BuyerID        uuid.UUID       `json:"buyer_id"        db:"buyer_id"`
	SellerID       uuid.UUID       `json:"seller_id"       db:"seller_id"`
	Price          decimal.Decimal `json:"price"           db:"price"`
	Quantity       decimal.Decimal `json:"quantity"        db:"quantity"`
	Fee            decimal.Decimal `json:"fee"             db:"fee"`
	SettlementType SettlementType  `json:"settlement_type" db:"settlement_type"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Order-book view
// ──────────────────────────────────────────────────────────────────────────────

// BookLevel is one aggregated price level of the order book.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// BookView is the aggregated order book: bids best-first (highest price),
// asks best-first (lowest price). LastPrice is nil before the first fill.
type BookView struct {
	Bids      []BookLevel      `json:"bids"`
	Asks      []BookLevel      `json:"asks"`
	LastPrice *decimal.Decimal `json:"last_price"`
}
