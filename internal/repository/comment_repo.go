package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/predictru/backend/internal/domain"
)

// CommentRepository handles market discussion threads.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository creates a new CommentRepository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts a comment.
func (r *CommentRepository) Create(ctx context.Context, c *domain.Comment) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO comments (id, market_id, user_id, text, parent_id, created_at, updated_at)
		VALUES (:id, :market_id, :user_id, :text, :parent_id, :created_at, :updated_at)`,
		c)
	if err != nil {
		return fmt.Errorf("comment_repo.Create: %w", err)
	}
	return nil
}

// ListByMarket returns a market's comments oldest first, joined with author
// display fields, capped at limit.
func (r *CommentRepository) ListByMarket(ctx context.Context, marketID uuid.UUID, limit int) ([]*domain.CommentView, error) {
	var comments []*domain.CommentView
	err := r.db.SelectContext(ctx, &comments, `
		SELECT c.*, u.username, u.first_name
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.market_id = $1
		ORDER BY c.created_at ASC
		LIMIT $2`,
		marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("comment_repo.ListByMarket: %w", err)
	}
	return comments, nil
}
