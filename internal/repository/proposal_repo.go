package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/predictru/backend/internal/domain"
)

// ProposalRepository handles user-submitted market proposals.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository creates a new ProposalRepository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts a proposal in the pending state.
func (r *ProposalRepository) Create(ctx context.Context, p *domain.MarketProposal) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO market_proposals
			(id, user_id, title, description, category, closes_at, status, created_at, updated_at)
		VALUES
			(:id, :user_id, :title, :description, :category, :closes_at, :status, :created_at, :updated_at)`,
		p)
	if err != nil {
		return fmt.Errorf("proposal_repo.Create: %w", err)
	}
	return nil
}

// GetForUpdate loads a proposal with a row lock so review decisions cannot
// race each other.
func (r *ProposalRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.MarketProposal, error) {
	var p domain.MarketProposal
	err := tx.GetContext(ctx, &p,
		`SELECT * FROM market_proposals WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProposalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("proposal_repo.GetForUpdate: %w", err)
	}
	return &p, nil
}

// SetReviewed records the admin's decision. MarketID is set on approval,
// reason on rejection.
func (r *ProposalRepository) SetReviewed(ctx context.Context, tx *sqlx.Tx, p *domain.MarketProposal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE market_proposals
		SET status           = $2,
		    market_id        = $3,
		    rejection_reason = $4,
		    updated_at       = now()
		WHERE id = $1`,
		p.ID, p.Status, p.MarketID, p.RejectionReason)
	if err != nil {
		return fmt.Errorf("proposal_repo.SetReviewed: %w", err)
	}
	return nil
}

// ListByUser returns a user's own proposals, newest first.
func (r *ProposalRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.MarketProposal, error) {
	var proposals []*domain.MarketProposal
	err := r.db.SelectContext(ctx, &proposals, `
		SELECT * FROM market_proposals
		WHERE user_id = $1
		ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("proposal_repo.ListByUser: %w", err)
	}
	return proposals, nil
}

// ListPending returns unreviewed proposals oldest first, so admins work
// through the queue in submission order.
func (r *ProposalRepository) ListPending(ctx context.Context) ([]*domain.MarketProposal, error) {
	var proposals []*domain.MarketProposal
	err := r.db.SelectContext(ctx, &proposals, `
		SELECT * FROM market_proposals
		WHERE status = 'pending'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("proposal_repo.ListPending: %w", err)
	}
	return proposals, nil
}
