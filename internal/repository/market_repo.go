package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/predictru/backend/internal/domain"
)

// MarketRepository handles all database operations for Markets and their
// price history.
type MarketRepository struct {
	db *sqlx.DB
}

// NewMarketRepository creates a new MarketRepository.
func NewMarketRepository(db *sqlx.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

const insertMarket = `
	INSERT INTO markets
		(id, title, description, category, image_url, status, mechanism,
		 q_yes, q_no, liquidity_b, last_trade_price_yes,
		 min_bet, max_bet, total_volume, total_traders, closes_at,
		 resolution_source, resolution_outcome, resolved_at,
		 created_by, is_featured, created_at, updated_at)
	VALUES
		(:id, :title, :description, :category, :image_url, :status, :mechanism,
		 :q_yes, :q_no, :liquidity_b, :last_trade_price_yes,
		 :min_bet, :max_bet, :total_volume, :total_traders, :closes_at,
		 :resolution_source, :resolution_outcome, :resolved_at,
		 :created_by, :is_featured, :created_at, :updated_at)`

// Create inserts a new market row.
func (r *MarketRepository) Create(ctx context.Context, m *domain.Market) error {
	if _, err := r.db.NamedExecContext(ctx, insertMarket, m); err != nil {
		return fmt.Errorf("market_repo.Create: %w", err)
	}
	return nil
}

// CreateInTx inserts a market inside the caller's transaction. Proposal
// approval creates the market and updates the proposal atomically.
func (r *MarketRepository) CreateInTx(ctx context.Context, tx *sqlx.Tx, m *domain.Market) error {
	if _, err := tx.NamedExecContext(ctx, insertMarket, m); err != nil {
		return fmt.Errorf("market_repo.CreateInTx: %w", err)
	}
	return nil
}

// UpdateDetails writes the admin-editable presentation fields.
func (r *MarketRepository) UpdateDetails(ctx context.Context, m *domain.Market) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE markets
		SET title             = $1,
		    description       = $2,
		    category          = $3,
		    image_url         = $4,
		    is_featured       = $5,
		    resolution_source = $6,
		    updated_at        = now()
		WHERE id = $7`,
		m.Title, m.Description, m.Category, m.ImageURL, m.IsFeatured, m.ResolutionSource, m.ID)
	if err != nil {
		return fmt.Errorf("market_repo.UpdateDetails: %w", err)
	}
	return nil
}

// GetByID fetches a market by its primary key.
func (r *MarketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := r.db.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.GetByID: %w", err)
	}
	return &m, nil
}

// GetForUpdate loads a market inside a transaction with a row lock. All
// trading paths lock the market after the user to keep lock order stable.
func (r *MarketRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := tx.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.GetForUpdate: %w", err)
	}
	return &m, nil
}

// UpdateTradeState writes the mutable trading fields back after an AMM trade
// or a matching run: outstanding quantities, last price, volume and trader
// count. Runs inside the trade's transaction.
func (r *MarketRepository) UpdateTradeState(ctx context.Context, tx *sqlx.Tx, m *domain.Market) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET q_yes                = $1,
		    q_no                 = $2,
		    last_trade_price_yes = $3,
		    total_volume         = $4,
		    total_traders        = $5,
		    updated_at           = now()
		WHERE id = $6`,
		m.QYes, m.QNo, m.LastTradePriceYes, m.TotalVolume, m.TotalTraders, m.ID)
	if err != nil {
		return fmt.Errorf("market_repo.UpdateTradeState: %w", err)
	}
	return nil
}

// Resolve marks the market resolved with its outcome inside the resolution
// transaction. Only open or trading_closed markets can resolve.
func (r *MarketRepository) Resolve(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, outcome domain.Outcome) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET status             = 'resolved',
		    resolution_outcome = $1,
		    resolved_at        = now(),
		    updated_at         = now()
		WHERE id = $2 AND status IN ('open', 'trading_closed')`,
		string(outcome), marketID)
	if err != nil {
		return fmt.Errorf("market_repo.Resolve: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotResolvable
	}
	return nil
}

// Cancel marks the market cancelled inside the refund transaction. Refunds
// are the caller's responsibility.
func (r *MarketRepository) Cancel(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET status     = 'cancelled',
		    updated_at = now()
		WHERE id = $1 AND status IN ('open', 'trading_closed')`,
		marketID)
	if err != nil {
		return fmt.Errorf("market_repo.Cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotResolvable
	}
	return nil
}

// SetTradingClosed flips an expired open market to trading_closed.
func (r *MarketRepository) SetTradingClosed(ctx context.Context, marketID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE markets
		SET status = 'trading_closed', updated_at = now()
		WHERE id = $1 AND status = 'open'`,
		marketID)
	if err != nil {
		return fmt.Errorf("market_repo.SetTradingClosed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotOpen
	}
	return nil
}

// ListExpiredOpen returns open markets whose closing time has passed, oldest
// first. Used by the scheduler.
func (r *MarketRepository) ListExpiredOpen(ctx context.Context, now time.Time) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets,
		`SELECT * FROM markets WHERE status = 'open' AND closes_at <= $1 ORDER BY closes_at ASC`,
		now)
	if err != nil {
		return nil, fmt.Errorf("market_repo.ListExpiredOpen: %w", err)
	}
	return markets, nil
}

// ListFilter narrows ListCursor results. Zero values mean "no filter".
type ListFilter struct {
	Status   string
	Category string
	Featured bool
}

// ListCursor returns up to limit markets created strictly before the cursor
// time, newest first. Cursor pagination keeps page boundaries stable while
// new markets appear; a nil cursor starts from the newest.
func (r *MarketRepository) ListCursor(ctx context.Context, f ListFilter, before *time.Time, limit int) ([]*domain.Market, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0

	if f.Status != "" {
		n++
		where += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, f.Status)
	}
	if f.Category != "" {
		n++
		where += fmt.Sprintf(" AND category = $%d", n)
		args = append(args, f.Category)
	}
	if f.Featured {
		where += " AND is_featured"
	}
	if before != nil {
		n++
		where += fmt.Sprintf(" AND created_at < $%d", n)
		args = append(args, *before)
	}

	query := fmt.Sprintf(
		"SELECT * FROM markets%s ORDER BY created_at DESC LIMIT $%d",
		where, n+1)
	args = append(args, limit)

	var markets []*domain.Market
	if err := r.db.SelectContext(ctx, &markets, query, args...); err != nil {
		return nil, fmt.Errorf("market_repo.ListCursor: %w", err)
	}
	return markets, nil
}

// TopByVolume returns open markets ordered by traded volume, busiest first.
func (r *MarketRepository) TopByVolume(ctx context.Context, limit int) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets, `
		SELECT * FROM markets
		WHERE status = 'open'
		ORDER BY total_volume DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("market_repo.TopByVolume: %w", err)
	}
	return markets, nil
}

// ── Price history ─────────────────────────────────────────────────────────────

// AddPricePoint appends one price sample inside the trade's transaction.
func (r *MarketRepository) AddPricePoint(ctx context.Context, tx *sqlx.Tx, p *domain.PricePoint) error {
	query := `
		INSERT INTO price_history (id, market_id, price_yes, price_no, q_yes, q_no, created_at)
		VALUES (:id, :market_id, :price_yes, :price_no, :q_yes, :q_no, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("market_repo.AddPricePoint: %w", err)
	}
	return nil
}

// PriceHistory returns samples for a market since the given time, oldest
// first.
func (r *MarketRepository) PriceHistory(ctx context.Context, marketID uuid.UUID, since time.Time) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint
	err := r.db.SelectContext(ctx, &points, `
		SELECT * FROM price_history
		WHERE market_id = $1 AND created_at >= $2
		ORDER BY created_at ASC`,
		marketID, since)
	if err != nil {
		return nil, fmt.Errorf("market_repo.PriceHistory: %w", err)
	}
	return points, nil
}
