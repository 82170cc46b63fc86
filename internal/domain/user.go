package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// User
// ──────────────────────────────────────────────────────────────────────────────

// User is the domain entity for accounts. Identity is Telegram-attested; there
// are no passwords. Balance and ReservedBalance are PRC with two fractional
// digits. Every state-mutation path checks Available before spending; the one
// exception is the mint fee, whose halves are charged on settlement and can
// briefly push a fully-reserved account a few cents past its free balance.
type User struct {
	ID           uuid.UUID `json:"id"            db:"id"`
	TelegramID   int64     `json:"telegram_id"   db:"telegram_id"`
	Username     *string   `json:"username"      db:"username"`
	FirstName    string    `json:"first_name"    db:"first_name"`
	LastName     *string   `json:"last_name"     db:"last_name"`
	PhotoURL     *string   `json:"photo_url"     db:"photo_url"`
	LanguageCode string    `json:"language_code" db:"language_code"`

	Balance         decimal.Decimal `json:"balance"          db:"balance"`
	ReservedBalance decimal.Decimal `json:"reserved_balance" db:"reserved_balance"`

	TotalTrades int             `json:"total_trades" db:"total_trades"`
	TotalProfit decimal.Decimal `json:"total_profit" db:"total_profit"`
	WinRate     decimal.Decimal `json:"win_rate"     db:"win_rate"`

	ReferralCode  string     `json:"referral_code"  db:"referral_code"`
	ReferredBy    *uuid.UUID `json:"referred_by"    db:"referred_by"`
	ReferralCount int        `json:"referral_count" db:"referral_count"`

	// DailyBonusClaimedAt holds the UTC date (YYYY-MM-DD) of the last claim.
	DailyBonusClaimedAt *string `json:"daily_bonus_claimed_at" db:"daily_bonus_claimed_at"`

	IsActive  bool      `json:"is_active"  db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Available returns the balance that is free to spend (not reserved for
// resting orders).
func (u *User) Available() decimal.Decimal {
	return u.Balance.Sub(u.ReservedBalance)
}

// DisplayName returns the best human-readable name for the user.
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	if u.LastName != nil && *u.LastName != "" {
		return u.FirstName + " " + *u.LastName
	}
	return u.FirstName
}

// ──────────────────────────────────────────────────────────────────────────────
// Read models
// ──────────────────────────────────────────────────────────────────────────────

// PublicProfile is a user view safe to expose via API.
type PublicProfile struct {
	ID          uuid.UUID       `json:"id"`
	TelegramID  int64           `json:"telegram_id"`
	Username    *string         `json:"username"`
	FirstName   string          `json:"first_name"`
	PhotoURL    *string         `json:"photo_url"`
	Balance     decimal.Decimal `json:"balance"`
	TotalTrades int             `json:"total_trades"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	WinRate     decimal.Decimal `json:"win_rate"`
	IsAdmin     bool            `json:"is_admin"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ToPublicProfile converts a User to its public representation. Whether the
// user is an admin is decided by configuration, so the caller passes it in.
func (u *User) ToPublicProfile(isAdmin bool) PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		TelegramID:  u.TelegramID,
		Username:    u.Username,
		FirstName:   u.FirstName,
		PhotoURL:    u.PhotoURL,
		Balance:     u.Balance,
		TotalTrades: u.TotalTrades,
		TotalProfit: u.TotalProfit,
		WinRate:     u.WinRate,
		IsAdmin:     isAdmin,
		CreatedAt:   u.CreatedAt,
	}
}

// LeaderboardEntry is one row of the cached leaderboard.
type LeaderboardEntry struct {
	Rank        int             `json:"rank"`
	UserID      uuid.UUID       `json:"user_id"      db:"user_id"`
	Username    *string         `json:"username"     db:"username"`
	FirstName   string          `json:"first_name"   db:"first_name"`
	PhotoURL    *string         `json:"photo_url"    db:"photo_url"`
	TotalProfit decimal.Decimal `json:"total_profit" db:"total_profit"`
	WinRate     decimal.Decimal `json:"win_rate"     db:"win_rate"`
	TotalTrades int             `json:"total_trades" db:"total_trades"`
}
