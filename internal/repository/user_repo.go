package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/domain"
)

// UserRepository handles all database operations for Users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user row inside the caller's transaction so the signup
// grant and its ledger entry land atomically.
func (r *UserRepository) Create(ctx context.Context, tx *sqlx.Tx, u *domain.User) error {
	query := `
		INSERT INTO users
			(id, telegram_id, username, first_name, last_name, photo_url, language_code,
			 balance, reserved_balance, total_trades, total_profit, win_rate,
			 referral_code, referred_by, referral_count, daily_bonus_claimed_at,
			 is_active, created_at, updated_at)
		VALUES
			(:id, :telegram_id, :username, :first_name, :last_name, :photo_url, :language_code,
			 :balance, :reserved_balance, :total_trades, :total_profit, :win_rate,
			 :referral_code, :referred_by, :referral_count, :daily_bonus_claimed_at,
			 :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, u); err != nil {
		return fmt.Errorf("user_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByID: %w", err)
	}
	return &u, nil
}

// GetByTelegramID fetches a user by their Telegram account id (used on every
// authentication).
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByTelegramID: %w", err)
	}
	return &u, nil
}

// GetByReferralCode fetches a user by their referral code.
func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE referral_code = $1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByReferralCode: %w", err)
	}
	return &u, nil
}

// GetForUpdate loads a user inside a transaction with a row lock. Every
// balance mutation goes through this to serialise concurrent spends.
func (r *UserRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := tx.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetForUpdate: %w", err)
	}
	return &u, nil
}

// UpdateProfile refreshes the Telegram profile fields on login.
func (r *UserRepository) UpdateProfile(ctx context.Context, u *domain.User) error {
	// A successful login also reactivates accounts that were deactivated after
	// the user blocked the bot.
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET username      = $1,
		    first_name    = $2,
		    last_name     = $3,
		    photo_url     = $4,
		    language_code = $5,
		    is_active     = TRUE,
		    updated_at    = now()
		WHERE id = $6`,
		u.Username, u.FirstName, u.LastName, u.PhotoURL, u.LanguageCode, u.ID)
	if err != nil {
		return fmt.Errorf("user_repo.UpdateProfile: %w", err)
	}
	return nil
}

// ── Balance mutations (transactional) ─────────────────────────────────────────

// AddBalance credits amount to a user's balance inside a transaction.
func (r *UserRepository) AddBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = balance + $1, updated_at = now() WHERE id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("user_repo.AddBalance: %w", err)
	}
	return nil
}

// DeductBalance subtracts amount from a user's balance inside a transaction.
// Returns ErrInsufficientBalance when the available balance (balance minus
// reserved) would go negative. Locks the row.
func (r *UserRepository) DeductBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	var available decimal.Decimal
	err := tx.GetContext(ctx, &available,
		`SELECT (balance - reserved_balance) FROM users WHERE id = $1 FOR UPDATE`,
		userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("user_repo.DeductBalance lock: %w", err)
	}

	if available.LessThan(amount) {
		return domain.ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET balance = balance - $1, updated_at = now() WHERE id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("user_repo.DeductBalance update: %w", err)
	}
	return nil
}

// ReserveBalance increments reserved_balance (collateral for a resting order).
func (r *UserRepository) ReserveBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET reserved_balance = reserved_balance + $1, updated_at = now() WHERE id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("user_repo.ReserveBalance: %w", err)
	}
	return nil
}

// ReleaseBalance decrements reserved_balance, clamped at zero.
func (r *UserRepository) ReleaseBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET reserved_balance = GREATEST(reserved_balance - $1, 0), updated_at = now() WHERE id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("user_repo.ReleaseBalance: %w", err)
	}
	return nil
}

// ── Stats ─────────────────────────────────────────────────────────────────────

// IncrementTrades bumps total_trades by one inside a transaction.
func (r *UserRepository) IncrementTrades(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET total_trades = total_trades + 1, updated_at = now() WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("user_repo.IncrementTrades: %w", err)
	}
	return nil
}

// AddProfit adds a signed delta to total_profit inside a transaction.
func (r *UserRepository) AddProfit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET total_profit = total_profit + $1, updated_at = now() WHERE id = $2`,
		delta, userID)
	if err != nil {
		return fmt.Errorf("user_repo.AddProfit: %w", err)
	}
	return nil
}

// UpdateWinRate recomputes win_rate from the payout/trade ratio inside a
// transaction.
func (r *UserRepository) UpdateWinRate(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, winRate decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET win_rate = $1, updated_at = now() WHERE id = $2`,
		winRate, userID)
	if err != nil {
		return fmt.Errorf("user_repo.UpdateWinRate: %w", err)
	}
	return nil
}

// CountPayoutWins returns how many payout transactions a user has, used as
// the win-rate numerator. Cancellation refunds are also typed payout, so a
// refunded market counts as a win here.
func (r *UserRepository) CountPayoutWins(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND type = 'payout'`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("user_repo.CountPayoutWins: %w", err)
	}
	return n, nil
}

// IncrementReferrals bumps referral_count by one.
func (r *UserRepository) IncrementReferrals(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET referral_count = referral_count + 1, updated_at = now() WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("user_repo.IncrementReferrals: %w", err)
	}
	return nil
}

// SetReferredBy links the invitee to their inviter inside the referral
// transaction. Returns ErrReferralApplied when a referral is already
// recorded, so the bonus pays out at most once.
func (r *UserRepository) SetReferredBy(ctx context.Context, tx *sqlx.Tx, userID, inviterID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET referred_by = $1, updated_at = now()
		WHERE id = $2 AND referred_by IS NULL`,
		inviterID, userID)
	if err != nil {
		return fmt.Errorf("user_repo.SetReferredBy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrReferralApplied
	}
	return nil
}

// SetDailyBonusClaimed stamps the claim date (UTC "YYYY-MM-DD") inside a
// transaction. Returns ErrDailyBonusClaimed when the stamp already equals
// today, making the claim idempotent per day.
func (r *UserRepository) SetDailyBonusClaimed(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, day string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET daily_bonus_claimed_at = $1, updated_at = now()
		WHERE id = $2
		  AND (daily_bonus_claimed_at IS NULL OR daily_bonus_claimed_at <> $1)`,
		day, userID)
	if err != nil {
		return fmt.Errorf("user_repo.SetDailyBonusClaimed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDailyBonusClaimed
	}
	return nil
}

// ── Listings ──────────────────────────────────────────────────────────────────

// TopByProfit returns the most profitable active users, best first. Feeds the
// leaderboard cache.
func (r *UserRepository) TopByProfit(ctx context.Context, limit int) ([]*domain.User, error) {
	var users []*domain.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT * FROM users
		WHERE is_active
		ORDER BY total_profit DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("user_repo.TopByProfit: %w", err)
	}
	return users, nil
}

// ListActiveTelegramIDs returns telegram ids of active users, capped, for
// broadcast notifications.
func (r *UserRepository) ListActiveTelegramIDs(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT telegram_id FROM users WHERE is_active LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("user_repo.ListActiveTelegramIDs: %w", err)
	}
	return ids, nil
}

// DeactivateByTelegramID marks an account inactive, keyed by Telegram chat id
// because that is all a failed broadcast send knows about the recipient.
func (r *UserRepository) DeactivateByTelegramID(ctx context.Context, telegramID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = now() WHERE telegram_id = $1`,
		telegramID)
	if err != nil {
		return fmt.Errorf("user_repo.DeactivateByTelegramID: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// isPgUniqueViolation checks whether err is a PostgreSQL unique constraint
// violation for the given constraint name.
func isPgUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unique constraint") && strings.Contains(msg, constraintName)
}
