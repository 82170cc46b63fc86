package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/domain"
)

// PositionRepository handles all database operations for share Positions.
type PositionRepository struct {
	db *sqlx.DB
}

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// GetOrCreateForUpdate loads the (user, market, outcome) position with a row
// lock, inserting a zero position first if none exists. created reports
// whether this is the user's first position on that side. All trading paths
// lock positions last, after the user and the market.
func (r *PositionRepository) GetOrCreateForUpdate(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID, outcome domain.Outcome) (pos *domain.Position, created bool, err error) {
	var p domain.Position
	err = tx.GetContext(ctx, &p, `
		SELECT * FROM positions
		WHERE user_id = $1 AND market_id = $2 AND outcome = $3
		FOR UPDATE`,
		userID, marketID, outcome)
	if err == nil {
		return &p, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("position_repo.GetOrCreateForUpdate: %w", err)
	}

	now := time.Now().UTC()
	p = domain.Position{
		ID:             uuid.New(),
		UserID:         userID,
		MarketID:       marketID,
		Outcome:        outcome,
		Shares:         decimal.Zero,
		ReservedShares: decimal.Zero,
		TotalCost:      decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO positions
			(id, user_id, market_id, outcome, shares, reserved_shares, total_cost,
			 created_at, updated_at)
		VALUES
			(:id, :user_id, :market_id, :outcome, :shares, :reserved_shares, :total_cost,
			 :created_at, :updated_at)`,
		&p)
	if err != nil {
		return nil, false, fmt.Errorf("position_repo.GetOrCreateForUpdate insert: %w", err)
	}
	return &p, true, nil
}

// Save writes the mutable position fields back inside the caller's
// transaction.
func (r *PositionRepository) Save(ctx context.Context, tx *sqlx.Tx, p *domain.Position) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET shares = $1, reserved_shares = $2, total_cost = $3, updated_at = now()
		WHERE id = $4`,
		p.Shares, p.ReservedShares, p.TotalCost, p.ID)
	if err != nil {
		return fmt.Errorf("position_repo.Save: %w", err)
	}
	return nil
}

// ReserveShares moves qty shares behind an open sell order, failing when the
// available (unreserved) holding is too small.
func (r *PositionRepository) ReserveShares(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, qty decimal.Decimal) error {
	var available decimal.Decimal
	err := tx.GetContext(ctx, &available,
		`SELECT (shares - reserved_shares) FROM positions WHERE id = $1 FOR UPDATE`,
		positionID)
	if err != nil {
		return fmt.Errorf("position_repo.ReserveShares lock: %w", err)
	}
	if available.LessThan(qty) {
		return domain.ErrInsufficientShares
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE positions
		SET reserved_shares = reserved_shares + $1, updated_at = now()
		WHERE id = $2`,
		qty, positionID)
	if err != nil {
		return fmt.Errorf("position_repo.ReserveShares: %w", err)
	}
	return nil
}

// ReleaseShares returns reserved shares to the available holding, clamped so
// a double release can never drive the reservation negative.
func (r *PositionRepository) ReleaseShares(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, qty decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET reserved_shares = GREATEST(reserved_shares - $1, 0), updated_at = now()
		WHERE id = $2`,
		qty, positionID)
	if err != nil {
		return fmt.Errorf("position_repo.ReleaseShares: %w", err)
	}
	return nil
}

// ── Listings ──────────────────────────────────────────────────────────────────

// ListByUser returns a user's positions joined with their markets, newest
// activity first.
func (r *PositionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.PositionView, error) {
	var positions []*domain.PositionView
	err := r.db.SelectContext(ctx, &positions, `
		SELECT p.*,
		       m.title              AS market_title,
		       m.status             AS market_status,
		       m.resolution_outcome AS market_outcome
		FROM positions p
		JOIN markets m ON m.id = p.market_id
		WHERE p.user_id = $1
		ORDER BY p.updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListByUser: %w", err)
	}
	return positions, nil
}

// ListByMarket returns every position in a market, locked for the resolution
// or cancellation transaction.
func (r *PositionRepository) ListByMarket(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := tx.SelectContext(ctx, &positions, `
		SELECT * FROM positions
		WHERE market_id = $1
		ORDER BY created_at ASC
		FOR UPDATE`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListByMarket: %w", err)
	}
	return positions, nil
}

// CountDistinctTraders counts how many distinct users hold or ever held a
// position in the market.
func (r *PositionRepository) CountDistinctTraders(ctx context.Context, marketID uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(DISTINCT user_id) FROM positions WHERE market_id = $1`, marketID)
	if err != nil {
		return 0, fmt.Errorf("position_repo.CountDistinctTraders: %w", err)
	}
	return n, nil
}

// ActiveSummary returns how many positions with live shares a user holds and
// the total PRC sunk into them.
func (r *PositionRepository) ActiveSummary(ctx context.Context, userID uuid.UUID) (count int, invested decimal.Decimal, err error) {
	row := struct {
		Count    int             `db:"count"`
		Invested decimal.Decimal `db:"invested"`
	}{}
	err = r.db.GetContext(ctx, &row, `
		SELECT COUNT(*) AS count, COALESCE(SUM(total_cost), 0) AS invested
		FROM positions
		WHERE user_id = $1 AND shares > 0`,
		userID)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("position_repo.ActiveSummary: %w", err)
	}
	return row.Count, row.Invested, nil
}
