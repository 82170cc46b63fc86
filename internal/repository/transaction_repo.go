package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/domain"
)

// TransactionRepository handles the append-only ledger of balance movements.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const insertTransaction = `
	INSERT INTO transactions
		(id, user_id, market_id, type, amount, shares, outcome, price_at_trade,
		 description, created_at)
	VALUES
		(:id, :user_id, :market_id, :type, :amount, :shares, :outcome, :price_at_trade,
		 :description, :created_at)`

// Create appends a ledger entry inside the caller's transaction so the entry
// commits or rolls back together with the balance change it describes.
func (r *TransactionRepository) Create(ctx context.Context, tx *sqlx.Tx, t *domain.Transaction) error {
	if _, err := tx.NamedExecContext(ctx, insertTransaction, t); err != nil {
		return fmt.Errorf("transaction_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches one ledger entry. Used to anchor cursor pagination.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := r.db.GetContext(ctx, &t, `SELECT * FROM transactions WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("transaction_repo.GetByID: %w", err)
	}
	return &t, nil
}

// ListByUserCursor returns up to limit entries created strictly before the
// cursor time, newest first. A nil cursor starts from the newest entry.
func (r *TransactionRepository) ListByUserCursor(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*domain.Transaction, error) {
	query := `SELECT * FROM transactions WHERE user_id = $1`
	args := []interface{}{userID}
	if before != nil {
		query += ` AND created_at < $2 ORDER BY created_at DESC LIMIT $3`
		args = append(args, *before, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2`
		args = append(args, limit)
	}

	var txns []*domain.Transaction
	if err := r.db.SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, fmt.Errorf("transaction_repo.ListByUserCursor: %w", err)
	}
	return txns, nil
}

// TypeStat is one row of a per-type ledger aggregate.
type TypeStat struct {
	Type  domain.TxType   `db:"type"`
	Count int             `db:"count"`
	Total decimal.Decimal `db:"total"`
}

// StatsByTypeForUser aggregates a user's ledger by type: entry count and the
// signed sum of amounts.
func (r *TransactionRepository) StatsByTypeForUser(ctx context.Context, userID uuid.UUID) ([]TypeStat, error) {
	var stats []TypeStat
	err := r.db.SelectContext(ctx, &stats, `
		SELECT type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total
		FROM transactions
		WHERE user_id = $1
		GROUP BY type`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("transaction_repo.StatsByTypeForUser: %w", err)
	}
	return stats, nil
}

// StatsByTypeForMarket aggregates a market's ledger by type. Amounts are
// summed as absolute values so buy and sell volume compare directly.
func (r *TransactionRepository) StatsByTypeForMarket(ctx context.Context, marketID uuid.UUID) ([]TypeStat, error) {
	var stats []TypeStat
	err := r.db.SelectContext(ctx, &stats, `
		SELECT type, COUNT(*) AS count, COALESCE(SUM(ABS(amount)), 0) AS total
		FROM transactions
		WHERE market_id = $1
		GROUP BY type`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("transaction_repo.StatsByTypeForMarket: %w", err)
	}
	return stats, nil
}
