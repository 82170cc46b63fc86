package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/domain"
)

// OrderRepository handles all database operations for limit Orders and their
// fills.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new order inside the placement transaction.
func (r *OrderRepository) Create(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error {
	query := `
		INSERT INTO orders
			(id, user_id, market_id, side, price, quantity, filled_quantity,
			 status, original_intent, created_at, updated_at)
		VALUES
			(:id, :user_id, :market_id, :side, :price, :quantity, :filled_quantity,
			 :status, :original_intent, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("order_repo.Create: %w", err)
	}
	return nil
}

// GetForUpdate loads an order inside a transaction with a row lock.
func (r *OrderRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := tx.GetContext(ctx, &o, `SELECT * FROM orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order_repo.GetForUpdate: %w", err)
	}
	return &o, nil
}

// ── Matching ──────────────────────────────────────────────────────────────────

// MatchableSells returns resting sell orders that cross an incoming buy at
// the given book price: best (lowest) price first, oldest first within a
// level. Rows are locked for the duration of the matching transaction. The
// incoming user's own orders never match.
func (r *OrderRepository) MatchableSells(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, price decimal.Decimal, excludeUserID uuid.UUID) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := tx.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE market_id = $1
		  AND side = 'sell'
		  AND status IN ('open', 'partially_filled')
		  AND price <= $2
		  AND user_id <> $3
		ORDER BY price ASC, created_at ASC
		FOR UPDATE`,
		marketID, price, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("order_repo.MatchableSells: %w", err)
	}
	return orders, nil
}

// MatchableBuys returns resting buy orders that cross an incoming sell at
// the given book price: best (highest) price first, oldest first within a
// level.
func (r *OrderRepository) MatchableBuys(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID, price decimal.Decimal, excludeUserID uuid.UUID) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := tx.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE market_id = $1
		  AND side = 'buy'
		  AND status IN ('open', 'partially_filled')
		  AND price >= $2
		  AND user_id <> $3
		ORDER BY price DESC, created_at ASC
		FOR UPDATE`,
		marketID, price, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("order_repo.MatchableBuys: %w", err)
	}
	return orders, nil
}

// UpdateFill writes the fill progress and status back inside the matching
// transaction.
func (r *OrderRepository) UpdateFill(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET filled_quantity = $1, status = $2, updated_at = now()
		WHERE id = $3`,
		o.FilledQuantity, o.Status, o.ID)
	if err != nil {
		return fmt.Errorf("order_repo.UpdateFill: %w", err)
	}
	return nil
}

// SetStatus moves an order to a new status.
func (r *OrderRepository) SetStatus(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, status domain.OrderStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = now() WHERE id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("order_repo.SetStatus: %w", err)
	}
	return nil
}

// ── Listings ──────────────────────────────────────────────────────────────────

// ListOpenByMarket returns every live order in a market, locked. Used when a
// market resolves or is cancelled and the whole book must be unwound.
func (r *OrderRepository) ListOpenByMarket(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := tx.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE market_id = $1 AND status IN ('open', 'partially_filled')
		ORDER BY created_at ASC
		FOR UPDATE`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListOpenByMarket: %w", err)
	}
	return orders, nil
}

// ListByUser returns a user's orders, newest first, optionally restricted to
// one market or to live orders only. Returns (orders, totalCount, error).
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, marketID *uuid.UUID, activeOnly bool, limit, offset int) ([]*domain.Order, int, error) {
	where := " WHERE user_id = $1"
	args := []interface{}{userID}
	n := 1

	if marketID != nil {
		n++
		where += fmt.Sprintf(" AND market_id = $%d", n)
		args = append(args, *marketID)
	}
	if activeOnly {
		where += " AND status IN ('open', 'partially_filled')"
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM orders"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("order_repo.ListByUser count: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT * FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, n+1, n+2)
	args = append(args, limit, offset)

	var orders []*domain.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("order_repo.ListByUser select: %w", err)
	}
	return orders, total, nil
}

// bookRow is one aggregated price level from the live book.
type bookRow struct {
	Side     domain.OrderSide `db:"side"`
	Price    decimal.Decimal  `db:"price"`
	Quantity decimal.Decimal  `db:"quantity"`
}

// BookLevels aggregates the live book into price levels: open quantity per
// price per side. Bids come back best-first (highest price), asks best-first
// (lowest price).
func (r *OrderRepository) BookLevels(ctx context.Context, marketID uuid.UUID) (bids, asks []domain.BookLevel, err error) {
	var rows []bookRow
	err = r.db.SelectContext(ctx, &rows, `
		SELECT side, price, SUM(quantity - filled_quantity) AS quantity
		FROM orders
		WHERE market_id = $1 AND status IN ('open', 'partially_filled')
		GROUP BY side, price
		ORDER BY side ASC, price DESC`,
		marketID)
	if err != nil {
		return nil, nil, fmt.Errorf("order_repo.BookLevels: %w", err)
	}

	for _, row := range rows {
		level := domain.BookLevel{Price: row.Price, Quantity: row.Quantity}
		if row.Side == domain.SideBuy {
			bids = append(bids, level)
		} else {
			asks = append(asks, level)
		}
	}
	// The query sorts each side high→low; asks need low→high.
	for i, j := 0, len(asks)-1; i < j; i, j = i+1, j-1 {
		asks[i], asks[j] = asks[j], asks[i]
	}
	return bids, asks, nil
}

// ── Fills ─────────────────────────────────────────────────────────────────────

// CreateFill records one executed trade between two orders inside the
// matching transaction.
func (r *OrderRepository) CreateFill(ctx context.Context, tx *sqlx.Tx, f *domain.TradeFill) error {
	query := `
		INSERT INTO trade_fills
			(id, market_id, buy_order_id, sell_order_id, buyer_id, seller_id,
			 price, quantity, fee, settlement_type, created_at)
		VALUES
			(:id, :market_id, :buy_order_id, :sell_order_id, :buyer_id, :seller_id,
			 :price, :quantity, :fee, :settlement_type, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("order_repo.CreateFill: %w", err)
	}
	return nil
}

// ListFillsByMarket returns recent fills for a market, newest first.
func (r *OrderRepository) ListFillsByMarket(ctx context.Context, marketID uuid.UUID, limit int) ([]*domain.TradeFill, error) {
	var fills []*domain.TradeFill
	err := r.db.SelectContext(ctx, &fills, `
		SELECT * FROM trade_fills
		WHERE market_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("order_repo.ListFillsByMarket: %w", err)
	}
	return fills, nil
}
