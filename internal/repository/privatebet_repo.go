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

// PrivateBetRepository handles all database operations for private bets and
// their participants.
type PrivateBetRepository struct {
	db *sqlx.DB
}

// NewPrivateBetRepository creates a new PrivateBetRepository.
func NewPrivateBetRepository(db *sqlx.DB) *PrivateBetRepository {
	return &PrivateBetRepository{db: db}
}

// Create inserts a new bet inside the creation transaction. A duplicate
// invite code surfaces as ErrInviteCodeExhausted so the caller can retry with
// a fresh code.
func (r *PrivateBetRepository) Create(ctx context.Context, tx *sqlx.Tx, b *domain.PrivateBet) error {
	query := `
		INSERT INTO private_bets
			(id, title, description, stake_amount, invite_code, status, created_by,
			 closes_at, voting_deadline, resolution_outcome, resolved_at, total_pool,
			 yes_count, no_count, yes_votes, no_votes, created_at, updated_at)
		VALUES
			(:id, :title, :description, :stake_amount, :invite_code, :status, :created_by,
			 :closes_at, :voting_deadline, :resolution_outcome, :resolved_at, :total_pool,
			 :yes_count, :no_count, :yes_votes, :no_votes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, b); err != nil {
		if isPgUniqueViolation(err, "private_bets_invite_code_key") {
			return domain.ErrInviteCodeExhausted
		}
		return fmt.Errorf("privatebet_repo.Create: %w", err)
	}
	return nil
}

// GetForUpdate loads a bet inside a transaction with a row lock. Every state
// transition locks the bet first, then the affected users.
func (r *PrivateBetRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.PrivateBet, error) {
	var b domain.PrivateBet
	err := tx.GetContext(ctx, &b, `SELECT * FROM private_bets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("privatebet_repo.GetForUpdate: %w", err)
	}
	return &b, nil
}

// GetByInviteCodeForUpdate loads a bet by its invite code (already uppercased
// by the caller) with a row lock, for the join path.
func (r *PrivateBetRepository) GetByInviteCodeForUpdate(ctx context.Context, tx *sqlx.Tx, code string) (*domain.PrivateBet, error) {
	var b domain.PrivateBet
	err := tx.GetContext(ctx, &b, `SELECT * FROM private_bets WHERE invite_code = $1 FOR UPDATE`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("privatebet_repo.GetByInviteCodeForUpdate: %w", err)
	}
	return &b, nil
}

// CodeExists reports whether an invite code is already taken.
func (r *PrivateBetRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM private_bets WHERE invite_code = $1)`, code)
	if err != nil {
		return false, fmt.Errorf("privatebet_repo.CodeExists: %w", err)
	}
	return exists, nil
}

// Save writes the mutable bet fields back inside the caller's transaction:
// status, pool, tallies and resolution record.
func (r *PrivateBetRepository) Save(ctx context.Context, tx *sqlx.Tx, b *domain.PrivateBet) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE private_bets
		SET status             = $1,
		    voting_deadline    = $2,
		    resolution_outcome = $3,
		    resolved_at        = $4,
		    total_pool         = $5,
		    yes_count          = $6,
		    no_count           = $7,
		    yes_votes          = $8,
		    no_votes           = $9,
		    updated_at         = now()
		WHERE id = $10`,
		b.Status, b.VotingDeadline, b.ResolutionOutcome, b.ResolvedAt,
		b.TotalPool, b.YesCount, b.NoCount, b.YesVotes, b.NoVotes, b.ID)
	if err != nil {
		return fmt.Errorf("privatebet_repo.Save: %w", err)
	}
	return nil
}

// ── Participants ──────────────────────────────────────────────────────────────

// AddParticipant inserts a staked entrant inside the join transaction. The
// (bet_id, user_id) unique constraint surfaces as ErrAlreadyJoined.
func (r *PrivateBetRepository) AddParticipant(ctx context.Context, tx *sqlx.Tx, p *domain.PrivateBetParticipant) error {
	query := `
		INSERT INTO private_bet_participants
			(id, bet_id, user_id, outcome, vote, voted_at, payout, created_at, updated_at)
		VALUES
			(:id, :bet_id, :user_id, :outcome, :vote, :voted_at, :payout, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		if isPgUniqueViolation(err, "private_bet_participants_bet_id_user_id_key") {
			return domain.ErrAlreadyJoined
		}
		return fmt.Errorf("privatebet_repo.AddParticipant: %w", err)
	}
	return nil
}

// GetParticipant fetches one user's entry in a bet, or ErrNotParticipant.
func (r *PrivateBetRepository) GetParticipant(ctx context.Context, betID, userID uuid.UUID) (*domain.PrivateBetParticipant, error) {
	var p domain.PrivateBetParticipant
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM private_bet_participants WHERE bet_id = $1 AND user_id = $2`,
		betID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotParticipant
		}
		return nil, fmt.Errorf("privatebet_repo.GetParticipant: %w", err)
	}
	return &p, nil
}

// GetParticipantForUpdate is GetParticipant with a row lock, for the voting
// path.
func (r *PrivateBetRepository) GetParticipantForUpdate(ctx context.Context, tx *sqlx.Tx, betID, userID uuid.UUID) (*domain.PrivateBetParticipant, error) {
	var p domain.PrivateBetParticipant
	err := tx.GetContext(ctx, &p,
		`SELECT * FROM private_bet_participants WHERE bet_id = $1 AND user_id = $2 FOR UPDATE`,
		betID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotParticipant
		}
		return nil, fmt.Errorf("privatebet_repo.GetParticipantForUpdate: %w", err)
	}
	return &p, nil
}

// ListParticipants returns every entrant of a bet, locked when tx is given
// (resolution and refund paths), oldest first.
func (r *PrivateBetRepository) ListParticipants(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID) ([]*domain.PrivateBetParticipant, error) {
	query := `SELECT * FROM private_bet_participants WHERE bet_id = $1 ORDER BY created_at ASC`
	var participants []*domain.PrivateBetParticipant
	var err error
	if tx != nil {
		err = tx.SelectContext(ctx, &participants, query+" FOR UPDATE", betID)
	} else {
		err = r.db.SelectContext(ctx, &participants, query, betID)
	}
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListParticipants: %w", err)
	}
	return participants, nil
}

// SetVote records a participant's vote inside the voting transaction.
func (r *PrivateBetRepository) SetVote(ctx context.Context, tx *sqlx.Tx, participantID uuid.UUID, vote domain.Outcome, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE private_bet_participants
		SET vote = $1, voted_at = $2, updated_at = now()
		WHERE id = $3`,
		vote, at, participantID)
	if err != nil {
		return fmt.Errorf("privatebet_repo.SetVote: %w", err)
	}
	return nil
}

// SetPayout records what a participant received at resolution or refund.
func (r *PrivateBetRepository) SetPayout(ctx context.Context, tx *sqlx.Tx, participantID uuid.UUID, payout decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE private_bet_participants
		SET payout = $1, updated_at = now()
		WHERE id = $2`,
		payout, participantID)
	if err != nil {
		return fmt.Errorf("privatebet_repo.SetPayout: %w", err)
	}
	return nil
}

// ── Listings & scheduler queries ──────────────────────────────────────────────

// ListByUser returns bets the user created or joined, newest first.
func (r *PrivateBetRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.PrivateBetView, error) {
	var bets []*domain.PrivateBetView
	err := r.db.SelectContext(ctx, &bets, `
		SELECT DISTINCT b.*, u.first_name AS creator_first_name, u.username AS creator_username
		FROM private_bets b
		JOIN users u ON u.id = b.created_by
		LEFT JOIN private_bet_participants p ON p.bet_id = b.id
		WHERE b.created_by = $1 OR p.user_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListByUser: %w", err)
	}
	return bets, nil
}

// GetViewByID loads a bet joined with its creator's display fields.
func (r *PrivateBetRepository) GetViewByID(ctx context.Context, id uuid.UUID) (*domain.PrivateBetView, error) {
	var v domain.PrivateBetView
	err := r.db.GetContext(ctx, &v, `
		SELECT b.*, u.first_name AS creator_first_name, u.username AS creator_username
		FROM private_bets b
		JOIN users u ON u.id = b.created_by
		WHERE b.id = $1`,
		id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("privatebet_repo.GetViewByID: %w", err)
	}
	return &v, nil
}

// GetViewByInviteCode is GetViewByID keyed by invite code.
func (r *PrivateBetRepository) GetViewByInviteCode(ctx context.Context, code string) (*domain.PrivateBetView, error) {
	var v domain.PrivateBetView
	err := r.db.GetContext(ctx, &v, `
		SELECT b.*, u.first_name AS creator_first_name, u.username AS creator_username
		FROM private_bets b
		JOIN users u ON u.id = b.created_by
		WHERE b.invite_code = $1`,
		code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("privatebet_repo.GetViewByInviteCode: %w", err)
	}
	return &v, nil
}

// ListParticipantViews returns a bet's participants joined with profile
// fields, in join order.
func (r *PrivateBetRepository) ListParticipantViews(ctx context.Context, betID uuid.UUID) ([]*domain.BetParticipantView, error) {
	var views []*domain.BetParticipantView
	err := r.db.SelectContext(ctx, &views, `
		SELECT p.user_id, u.first_name, u.username, p.outcome, p.vote, p.payout
		FROM private_bet_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.bet_id = $1
		ORDER BY p.created_at ASC`,
		betID)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListParticipantViews: %w", err)
	}
	return views, nil
}

// ListUserParticipants returns every participant row for one user, across all
// bets. Used to annotate bet lists with the caller's side and payout.
func (r *PrivateBetRepository) ListUserParticipants(ctx context.Context, userID uuid.UUID) ([]*domain.PrivateBetParticipant, error) {
	var participants []*domain.PrivateBetParticipant
	err := r.db.SelectContext(ctx, &participants,
		`SELECT * FROM private_bet_participants WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListUserParticipants: %w", err)
	}
	return participants, nil
}

// ListParticipantTelegramIDs returns the Telegram IDs of a bet's participants
// that have one linked, for voting notifications.
func (r *PrivateBetRepository) ListParticipantTelegramIDs(ctx context.Context, betID uuid.UUID) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT u.telegram_id
		FROM private_bet_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.bet_id = $1 AND u.telegram_id <> 0`,
		betID)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListParticipantTelegramIDs: %w", err)
	}
	return ids, nil
}

// ListExpiredOpen returns open bets whose closing time has passed. Used by
// the scheduler to push them into voting or cancel them.
func (r *PrivateBetRepository) ListExpiredOpen(ctx context.Context, now time.Time) ([]*domain.PrivateBet, error) {
	var bets []*domain.PrivateBet
	err := r.db.SelectContext(ctx, &bets,
		`SELECT * FROM private_bets WHERE status = 'open' AND closes_at <= $1 ORDER BY closes_at ASC`,
		now)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListExpiredOpen: %w", err)
	}
	return bets, nil
}

// ListExpiredVoting returns voting bets whose deadline has passed. Used by
// the scheduler to force a resolution or cancel on a tie.
func (r *PrivateBetRepository) ListExpiredVoting(ctx context.Context, now time.Time) ([]*domain.PrivateBet, error) {
	var bets []*domain.PrivateBet
	err := r.db.SelectContext(ctx, &bets,
		`SELECT * FROM private_bets WHERE status = 'voting' AND voting_deadline <= $1 ORDER BY voting_deadline ASC`,
		now)
	if err != nil {
		return nil, fmt.Errorf("privatebet_repo.ListExpiredVoting: %w", err)
	}
	return bets, nil
}
