package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/domain"
	"github.com/predictru/backend/internal/repository"
)

const (
	txDefaultLimit = 20
	txMaxLimit     = 50
)

// maxDeposit caps a single virtual top-up.
var maxDeposit = decimal.NewFromInt(10000)

// ──────────────────────────────────────────────────────────────────────────────
// Read views
// ──────────────────────────────────────────────────────────────────────────────

// MeView is the caller's own profile: the public projection plus the private
// fields only the owner sees.
type MeView struct {
	domain.PublicProfile
	LastName        *string         `json:"last_name"`
	ReservedBalance decimal.Decimal `json:"reserved_balance"`
	ReferralCode    string          `json:"referral_code"`
	ReferralCount   int             `json:"referral_count"`
	ReferredBy      *uuid.UUID      `json:"referred_by"`
}

// PositionRead is a position row with its derived average entry price.
type PositionRead struct {
	domain.PositionView
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// TransactionPage is one page of a user's ledger. NextCursor is the last
// transaction's id, or nil on the final page.
type TransactionPage struct {
	Transactions []*domain.Transaction `json:"transactions"`
	NextCursor   *string               `json:"next_cursor"`
}

// DepositResult confirms a virtual top-up.
type DepositResult struct {
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Status     string          `json:"status"`
}

// DailyBonusResult confirms a claimed daily bonus.
type DailyBonusResult struct {
	Bonus      decimal.Decimal `json:"bonus"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// ReferralResult confirms an applied referral code; Bonus is the invitee's cut.
type ReferralResult struct {
	Bonus      decimal.Decimal `json:"bonus"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// TypeSummary aggregates one transaction type in a user's stats.
type TypeSummary struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// UserStats is the caller's trading dashboard.
type UserStats struct {
	ActivePositions    int                    `json:"active_positions"`
	TotalInvested      decimal.Decimal        `json:"total_invested"`
	Balance            decimal.Decimal        `json:"balance"`
	TotalProfit        decimal.Decimal        `json:"total_profit"`
	TotalTrades        int                    `json:"total_trades"`
	WinRate            decimal.Decimal        `json:"win_rate"`
	TransactionSummary map[string]TypeSummary `json:"transaction_summary"`
}

// ──────────────────────────────────────────────────────────────────────────────
// UserService
// ──────────────────────────────────────────────────────────────────────────────

// UserService covers the account surface: profile, positions, ledger,
// deposits, bonuses and referrals.
type UserService struct {
	db       *sqlx.DB
	userRepo *repository.UserRepository
	posRepo  *repository.PositionRepository
	txRepo   *repository.TransactionRepository
	cfg      *config.Config
}

// NewUserService creates a UserService.
func NewUserService(
	db *sqlx.DB,
	userRepo *repository.UserRepository,
	posRepo *repository.PositionRepository,
	txRepo *repository.TransactionRepository,
	cfg *config.Config,
) *UserService {
	return &UserService{
		db:       db,
		userRepo: userRepo,
		posRepo:  posRepo,
		txRepo:   txRepo,
		cfg:      cfg,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Profile
// ──────────────────────────────────────────────────────────────────────────────

// Me returns the caller's own profile.
func (s *UserService) Me(ctx context.Context, userID uuid.UUID) (*MeView, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MeView{
		PublicProfile:   user.ToPublicProfile(s.cfg.Telegram.IsAdmin(user.TelegramID)),
		LastName:        user.LastName,
		ReservedBalance: user.ReservedBalance,
		ReferralCode:    user.ReferralCode,
		ReferralCount:   user.ReferralCount,
		ReferredBy:      user.ReferredBy,
	}, nil
}

// Profile returns another user's public profile.
func (s *UserService) Profile(ctx context.Context, userID uuid.UUID) (*domain.PublicProfile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.ToPublicProfile(s.cfg.Telegram.IsAdmin(user.TelegramID))
	return &profile, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Positions and ledger
// ──────────────────────────────────────────────────────────────────────────────

// GetPositions returns every position the caller holds, annotated with market
// state and the average entry price.
func (s *UserService) GetPositions(ctx context.Context, userID uuid.UUID) ([]*PositionRead, error) {
	positions, err := s.posRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user_service.GetPositions: %w", err)
	}
	out := make([]*PositionRead, 0, len(positions))
	for _, p := range positions {
		out = append(out, &PositionRead{
			PositionView: *p,
			AvgPrice:     domain.RoundPrice(p.AvgPrice()),
		})
	}
	return out, nil
}

// GetTransactions returns one page of the caller's ledger, newest first. The
// cursor is the id of the previous page's last transaction.
func (s *UserService) GetTransactions(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*TransactionPage, error) {
	if limit <= 0 {
		limit = txDefaultLimit
	}
	if limit > txMaxLimit {
		limit = txMaxLimit
	}

	// An unknown cursor starts from the newest entry rather than erroring.
	var before *time.Time
	if cursor != "" {
		if id, err := uuid.Parse(cursor); err == nil {
			if anchor, err := s.txRepo.GetByID(ctx, id); err == nil && anchor.UserID == userID {
				before = &anchor.CreatedAt
			}
		}
	}

	txns, err := s.txRepo.ListByUserCursor(ctx, userID, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("user_service.GetTransactions: %w", err)
	}

	var next *string
	if len(txns) > limit {
		txns = txns[:limit]
		id := txns[limit-1].ID.String()
		next = &id
	}
	return &TransactionPage{Transactions: txns, NextCursor: next}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Balance: deposit / withdraw / daily bonus
// ──────────────────────────────────────────────────────────────────────────────

// Deposit credits virtual PRC to the caller's balance.
func (s *UserService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*DepositResult, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidDeposit
	}
	if amount.GreaterThan(maxDeposit) {
		return nil, domain.ErrDepositLimit
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("user_service.Deposit: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var user *domain.User
	user, err = s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err = s.userRepo.AddBalance(ctx, tx, user.ID, amount); err != nil {
		return nil, err
	}
	if err = s.txRepo.Create(ctx, tx, &domain.Transaction{
		ID:          uuid.New(),
		UserID:      user.ID,
		Type:        domain.TxDeposit,
		Amount:      amount,
		Description: "Deposit PRC",
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("user_service.Deposit: commit: %w", err)
	}
	return &DepositResult{
		Amount:     amount,
		NewBalance: user.Balance.Add(amount),
		Status:     "completed",
	}, nil
}

// Withdraw always refuses: PRC never leaves the platform.
func (s *UserService) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	return domain.ErrWithdrawalsDisabled
}

// ClaimDailyBonus credits the once-per-UTC-day bonus.
func (s *UserService) ClaimDailyBonus(ctx context.Context, userID uuid.UUID) (*DailyBonusResult, error) {
	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	bonus := decimal.NewFromFloat(s.cfg.Bonus.Daily)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("user_service.ClaimDailyBonus: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var user *domain.User
	user, err = s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	// The claim marker flips atomically; a second claim the same day fails here.
	if err = s.userRepo.SetDailyBonusClaimed(ctx, tx, user.ID, today); err != nil {
		return nil, err
	}
	if err = s.userRepo.AddBalance(ctx, tx, user.ID, bonus); err != nil {
		return nil, err
	}
	if err = s.txRepo.Create(ctx, tx, &domain.Transaction{
		ID:          uuid.New(),
		UserID:      user.ID,
		Type:        domain.TxDaily,
		Amount:      bonus,
		Description: "Daily bonus",
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("user_service.ClaimDailyBonus: commit: %w", err)
	}
	return &DailyBonusResult{
		Bonus:      bonus,
		NewBalance: user.Balance.Add(bonus),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Referrals
// ──────────────────────────────────────────────────────────────────────────────

// ApplyReferral binds the caller to the code's owner and pays both sides.
// Works once per account.
func (s *UserService) ApplyReferral(ctx context.Context, userID uuid.UUID, code string) (*ReferralResult, error) {
	inviter, err := s.userRepo.GetByReferralCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrReferralNotFound
		}
		return nil, err
	}
	if inviter.ID == userID {
		return nil, domain.ErrReferralSelf
	}
	now := time.Now().UTC()
	inviteeBonus := decimal.NewFromFloat(s.cfg.Bonus.ReferralInvitee)
	inviterBonus := decimal.NewFromFloat(s.cfg.Bonus.ReferralInviter)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("user_service.ApplyReferral: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Bind and pay the invitee ──────────────────────────────────────────
	var invitee *domain.User
	invitee, err = s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if invitee.ReferredBy != nil {
		err = domain.ErrReferralApplied
		return nil, err
	}
	if err = s.userRepo.SetReferredBy(ctx, tx, invitee.ID, inviter.ID); err != nil {
		return nil, err
	}
	if err = s.userRepo.AddBalance(ctx, tx, invitee.ID, inviteeBonus); err != nil {
		return nil, err
	}
	if err = s.txRepo.Create(ctx, tx, &domain.Transaction{
		ID:          uuid.New(),
		UserID:      invitee.ID,
		Type:        domain.TxReferral,
		Amount:      inviteeBonus,
		Description: fmt.Sprintf("Referral bonus from %s", inviter.FirstName),
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	// ── 2. Pay the inviter ───────────────────────────────────────────────────
	if _, err = s.userRepo.GetForUpdate(ctx, tx, inviter.ID); err != nil {
		return nil, err
	}
	if err = s.userRepo.AddBalance(ctx, tx, inviter.ID, inviterBonus); err != nil {
		return nil, err
	}
	if err = s.userRepo.IncrementReferrals(ctx, tx, inviter.ID); err != nil {
		return nil, err
	}
	if err = s.txRepo.Create(ctx, tx, &domain.Transaction{
		ID:          uuid.New(),
		UserID:      inviter.ID,
		Type:        domain.TxReferral,
		Amount:      inviterBonus,
		Description: fmt.Sprintf("Referral bonus for inviting %s", invitee.FirstName),
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("user_service.ApplyReferral: commit: %w", err)
	}
	return &ReferralResult{
		Bonus:      inviteeBonus,
		NewBalance: invitee.Balance.Add(inviteeBonus),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Stats
// ──────────────────────────────────────────────────────────────────────────────

// MyStats aggregates the caller's trading dashboard.
func (s *UserService) MyStats(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, invested, err := s.posRepo.ActiveSummary(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user_service.MyStats: %w", err)
	}
	stats, err := s.txRepo.StatsByTypeForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user_service.MyStats: %w", err)
	}
	summary := make(map[string]TypeSummary, len(stats))
	for _, ts := range stats {
		summary[string(ts.Type)] = TypeSummary{Count: ts.Count, Total: ts.Total}
	}
	return &UserStats{
		ActivePositions:    count,
		TotalInvested:      invested,
		Balance:            user.Balance,
		TotalProfit:        user.TotalProfit,
		TotalTrades:        user.TotalTrades,
		WinRate:            user.WinRate,
		TransactionSummary: summary,
	}, nil
}

// ActiveTelegramIDs lists Telegram chat ids of active accounts, for broadcast
// sends.
func (s *UserService) ActiveTelegramIDs(ctx context.Context, limit int) ([]int64, error) {
	ids, err := s.userRepo.ListActiveTelegramIDs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("user_service.ActiveTelegramIDs: %w", err)
	}
	return ids, nil
}

// DeactivateTelegram marks the account behind a Telegram chat id inactive,
// removing it from broadcasts and the leaderboard. Called when the user blocks
// the bot; the next successful login reactivates the account.
func (s *UserService) DeactivateTelegram(ctx context.Context, telegramID int64) error {
	if err := s.userRepo.DeactivateByTelegramID(ctx, telegramID); err != nil {
		return fmt.Errorf("user_service.DeactivateTelegram: %w", err)
	}
	return nil
}
