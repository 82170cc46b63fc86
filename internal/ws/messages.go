// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"

	"github.com/predictru/backend/internal/domain"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypePriceUpdate    MsgType = "price_update"
	MsgTypeBookUpdate     MsgType = "book_update"
	MsgTypeMarketResolved MsgType = "market_resolved"
)

// ──────────────────────────────────────────────────────────────────────────────
// PriceUpdateMessage — broadcast after any trade moves a market's price.
// ──────────────────────────────────────────────────────────────────────────────

// PriceUpdateMessage carries the refreshed market summary so every client can
// repaint probability, volume and trader count in one message.
type PriceUpdateMessage struct {
	Type      MsgType               `json:"type"`
	Market    *domain.MarketSummary `json:"market"`
	Timestamp time.Time             `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// BookUpdateMessage — broadcast when a CLOB market's book changes.
// ──────────────────────────────────────────────────────────────────────────────

// BookUpdateMessage carries the aggregated book after a placement, fill or
// cancellation.
type BookUpdateMessage struct {
	Type      MsgType          `json:"type"`
	MarketID  uuid.UUID        `json:"market_id"`
	Book      *domain.BookView `json:"book"`
	Timestamp time.Time        `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketResolvedMessage — broadcast when a market is settled or cancelled.
// ──────────────────────────────────────────────────────────────────────────────

// MarketResolvedMessage tells clients which outcome won.
type MarketResolvedMessage struct {
	Type      MsgType        `json:"type"`
	MarketID  uuid.UUID      `json:"market_id"`
	Outcome   domain.Outcome `json:"outcome"`
	Timestamp time.Time      `json:"timestamp"`
}
