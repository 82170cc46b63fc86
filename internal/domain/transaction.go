package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────────────────────────────────

// TxType enumerates ledger entry types. The string forms are wire-stable.
type TxType string

const (
	TxBuy         TxType = "buy"          // LMSR buy, amount negative
	TxSell        TxType = "sell"         // LMSR sell, amount positive
	TxPayout      TxType = "payout"       // resolution payout or cancellation refund
	TxBonus       TxType = "bonus"        // signup bonus
	TxReferral    TxType = "referral"     // referrer reward
	TxDaily       TxType = "daily"        // daily bonus claim
	TxFee         TxType = "fee"          // trading fee, amount negative
	TxDeposit     TxType = "deposit"      // external top-up
	TxWithdraw    TxType = "withdraw"     // external withdrawal
	TxOrderFill   TxType = "order_fill"   // CLOB fill leg, signed per side
	TxOrderCancel TxType = "order_cancel" // reservation release marker, amount 0
	TxBetStake    TxType = "bet_stake"    // private-bet stake, amount negative
	TxBetPayout   TxType = "bet_payout"   // private-bet winnings
	TxBetRefund   TxType = "bet_refund"   // private-bet stake returned
)

// Transaction is an immutable, append-only ledger entry. Amount is signed:
// negative when PRC leaves the user's balance, positive when it arrives.
type Transaction struct {
	ID           uuid.UUID       `json:"id"             db:"id"`
	UserID       uuid.UUID       `json:"user_id"        db:"user_id"`
	MarketID     *uuid.UUID      `json:"market_id"      db:"market_id"`
	Type         TxType          `json:"type"           db:"type"`
	Amount       decimal.Decimal `json:"amount"         db:"amount"`
	Shares       decimal.Decimal `json:"shares"         db:"shares"`
	Outcome      *Outcome        `json:"outcome"        db:"outcome"`
	PriceAtTrade decimal.Decimal `json:"price_at_trade" db:"price_at_trade"`
	Description  string          `json:"description"    db:"description"`
	CreatedAt    time.Time       `json:"created_at"     db:"created_at"`
}
