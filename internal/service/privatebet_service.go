package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
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
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeLength   = 6
	inviteCodeRetries  = 5

	// minBetLeadTime is the shortest allowed gap between creating a bet and
	// its closing time.
	minBetLeadTime = 5 * time.Minute

	// votingWindow is how long participants get to vote once voting starts.
	votingWindow = 24 * time.Hour

	myBetsLimit      = 50
	betTitleMaxRunes = 80
)

// betFeeRate is the platform's cut of a resolved bet's pool. Fixed by product
// rule, independent of the trading fee.
var betFeeRate = decimal.NewFromFloat(0.02)

// VotingNotifier is the slice of the Telegram notifier the bet service needs.
// Implemented by notify.Telegram.
type VotingNotifier interface {
	VotingStarted(ctx context.Context, telegramIDs []int64, betTitle string, betID uuid.UUID, webAppURL string)
}

// ──────────────────────────────────────────────────────────────────────────────
// Read views
// ──────────────────────────────────────────────────────────────────────────────

// PrivateBetRead is the list/lookup projection of a bet, annotated with the
// caller's side and payout when the caller participates.
type PrivateBetRead struct {
	ID                uuid.UUID        `json:"id"`
	Title             string           `json:"title"`
	StakeAmount       decimal.Decimal  `json:"stake_amount"`
	InviteCode        string           `json:"invite_code"`
	Status            domain.BetStatus `json:"status"`
	ClosesAt          time.Time        `json:"closes_at"`
	VotingDeadline    time.Time        `json:"voting_deadline"`
	YesCount          int              `json:"yes_count"`
	NoCount           int              `json:"no_count"`
	TotalPool         decimal.Decimal  `json:"total_pool"`
	CreatedAt         time.Time        `json:"created_at"`
	CreatorName       string           `json:"creator_name"`
	ResolutionOutcome *domain.Outcome  `json:"resolution_outcome"`
	MyOutcome         *domain.Outcome  `json:"my_outcome"`
	MyPayout          *decimal.Decimal `json:"my_payout"`
}

// PrivateBetDetail extends PrivateBetRead with votes and the participant
// roster. Participants only.
type PrivateBetDetail struct {
	PrivateBetRead
	Description  string                       `json:"description"`
	YesVotes     int                          `json:"yes_votes"`
	NoVotes      int                          `json:"no_votes"`
	ResolvedAt   *time.Time                   `json:"resolved_at"`
	MyVote       *domain.Outcome              `json:"my_vote"`
	IsCreator    bool                         `json:"is_creator"`
	Participants []*domain.BetParticipantView `json:"participants"`
}

// ──────────────────────────────────────────────────────────────────────────────
// PrivateBetService
// ──────────────────────────────────────────────────────────────────────────────

// PrivateBetService runs friend-vs-friend bets: fixed-stake pools joined by
// invite code and resolved by participant vote. Every state transition locks
// the bet row first, then the users it touches.
type PrivateBetService struct {
	db       *sqlx.DB
	betRepo  *repository.PrivateBetRepository
	userRepo *repository.UserRepository
	txRepo   *repository.TransactionRepository
	cfg      *config.Config
	notifier VotingNotifier // injected after the Telegram client is built
}

// NewPrivateBetService creates a PrivateBetService.
func NewPrivateBetService(
	db *sqlx.DB,
	betRepo *repository.PrivateBetRepository,
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	cfg *config.Config,
) *PrivateBetService {
	return &PrivateBetService{
		db:       db,
		betRepo:  betRepo,
		userRepo: userRepo,
		txRepo:   txRepo,
		cfg:      cfg,
	}
}

// SetNotifier injects the Telegram notifier post-construction.
func (s *PrivateBetService) SetNotifier(n VotingNotifier) { s.notifier = n }

// ──────────────────────────────────────────────────────────────────────────────
// Lifecycle: create / join / start voting / vote
// ──────────────────────────────────────────────────────────────────────────────

// Create opens a bet, stakes the creator on their chosen side, and returns
// the read view carrying the shareable invite code.
func (s *PrivateBetService) Create(ctx context.Context, userID uuid.UUID, title, description string, stake decimal.Decimal, outcome domain.Outcome, closesAt time.Time) (*PrivateBetRead, error) {
	// ── 1. Validate and pick a code outside the transaction ──────────────────
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}
	if !stake.IsPositive() {
		return nil, domain.ErrInvalidStake
	}
	now := time.Now().UTC()
	if closesAt.Before(now.Add(minBetLeadTime)) {
		return nil, domain.ErrBetClosesTooSoon
	}
	code, err := s.generateInviteCode(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("privatebet_service.Create: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 2. Stake the creator ─────────────────────────────────────────────────
	var user *domain.User
	user, err = s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if user.Balance.LessThan(stake) {
		err = domain.ErrInsufficientBalance
		return nil, err
	}
	if err = s.userRepo.AddBalance(ctx, tx, user.ID, stake.Neg()); err != nil {
		return nil, err
	}

	// ── 3. Create the bet with the creator as first participant ──────────────
	bet := &domain.PrivateBet{
		ID:             uuid.New(),
		Title:          title,
		Description:    description,
		StakeAmount:    stake,
		InviteCode:     code,
		Status:         domain.BetOpen,
		CreatedBy:      user.ID,
		ClosesAt:       closesAt.UTC(),
		VotingDeadline: closesAt.UTC().Add(votingWindow),
		TotalPool:      stake,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if outcome == domain.OutcomeYes {
		bet.YesCount = 1
	} else {
		bet.NoCount = 1
	}
	if err = s.betRepo.Create(ctx, tx, bet); err != nil {
		return nil, err
	}

	participant := &domain.PrivateBetParticipant{
		ID:        uuid.New(),
		BetID:     bet.ID,
		UserID:    user.ID,
		Outcome:   outcome,
		Payout:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.betRepo.AddParticipant(ctx, tx, participant); err != nil {
		return nil, err
	}

	// ── 4. Ledger entry for the stake ────────────────────────────────────────
	if err = s.txRepo.Create(ctx, tx, &domain.Transaction{
		ID:          uuid.New(),
		UserID:      user.ID,
		Type:        domain.TxBetStake,
		Amount:      stake.Neg(),
		Description: fmt.Sprintf("Ставка на спор: %s", truncateRunes(title, betTitleMaxRunes)),
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("privatebet_service.Create: commit: %w", err)
	}

	view := &domain.PrivateBetView{
		PrivateBet:       *bet,
		CreatorFirstName: user.FirstName,
		CreatorUsername:  user.Username,
	}
	return s.betRead(view, participant), nil
}

// Join stakes another user on a side of an open bet found by invite code.
func (s *PrivateBetService) Join(ctx context.Context, userID uuid.UUID, inviteCode string, outcome domain.Outcome) (*PrivateBetRead, error) {
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}
	code := strings.ToUpper(strings.TrimSpace(inviteCode))
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("privatebet_service.Join: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock the bet and check it is joinable ─────────────────────────────
	var bet *domain.PrivateBet
	bet, err = s.betRepo.GetByInviteCodeForUpdate(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if bet.Status != domain.BetOpen {
		err = domain.ErrBetNotOpen
		return nil, err
	}

	// ── 2. Stake the joiner ──────────────────────────────────────────────────
	var user *domain.User
	user, err = s.userRepo.GetForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if user.Balance.LessThan(bet.StakeAmount) {
		err = domain.ErrInsufficientBalance
		return nil, err
	}
	if err = s.userRepo.AddBalance(ctx, tx, user.ID, bet.StakeAmount.Neg()); err != nil {
		return nil, err
	}

	// ── 3. Record participation; the unique constraint rejects double joins ──
	participant := &domain.PrivateBetParticipant{
		ID:        uuid.New(),
		BetID:     bet.ID,
		UserID:    user.ID,
		Outcome:   outcome,
		Payout:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.betRepo.AddParticipant(ctx, tx, participant); err != nil {
		return nil, err
	}

	if outcome == domain.OutcomeYes {
		bet.YesCount++
	} else {
		bet.NoCount++
	}
	bet.TotalPool = bet.TotalPool.Add(bet.StakeAmount)
	if err = s.betRepo.Save(ctx, tx, bet); err != nil {
		return nil, err
	}

	// ── 4. Ledger entry for the stake ────────────────────────────────────────
	if err = s.txRepo.Create(ctx, tx, &domain.Transaction{
		ID:          uuid.New(),
		UserID:      user.ID,
		Type:        domain.TxBetStake,
		Amount:      bet.StakeAmount.Neg(),
		Description: fmt.Sprintf("Ставка на спор: %s", truncateRunes(bet.Title, betTitleMaxRunes)),
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("privatebet_service.Join: commit: %w", err)
	}

	view, verr := s.betRepo.GetViewByID(ctx, bet.ID)
	if verr != nil {
		return nil, verr
	}
	return s.betRead(view, participant), nil
}

// StartVoting moves an open bet into its voting phase. Creator only; the bet
// needs participants on both sides.
func (s *PrivateBetService) StartVoting(ctx context.Context, userID, betID uuid.UUID) (*PrivateBetDetail, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("privatebet_service.StartVoting: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var bet *domain.PrivateBet
	bet, err = s.betRepo.GetForUpdate(ctx, tx, betID)
	if err != nil {
		return nil, err
	}
	if bet.CreatedBy != userID {
		err = domain.ErrNotBetCreator
		return nil, err
	}
	if bet.Status != domain.BetOpen {
		err = domain.ErrBetNotOpen
		return nil, err
	}
	if bet.ParticipantCount() < 2 || bet.IsOneSided() {
		err = domain.ErrBetOneSided
		return nil, err
	}

	bet.Status = domain.BetVoting
	bet.VotingDeadline = now.Add(votingWindow)
	if err = s.betRepo.Save(ctx, tx, bet); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("privatebet_service.StartVoting: commit: %w", err)
	}

	go s.notifyVotingAsync(bet.ID, bet.Title)

	return s.GetBet(ctx, userID, betID)
}

// CastVote records a participant's vote on the real-world outcome. Once one
// side holds a strict majority of participants the bet resolves immediately.
func (s *PrivateBetService) CastVote(ctx context.Context, userID, betID uuid.UUID, vote domain.Outcome) (*PrivateBetDetail, error) {
	if !vote.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("privatebet_service.CastVote: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock the bet, find the caller's entry ─────────────────────────────
	var bet *domain.PrivateBet
	bet, err = s.betRepo.GetForUpdate(ctx, tx, betID)
	if err != nil {
		return nil, err
	}
	if bet.Status != domain.BetVoting {
		err = domain.ErrBetNotVoting
		return nil, err
	}
	var participant *domain.PrivateBetParticipant
	participant, err = s.betRepo.GetParticipantForUpdate(ctx, tx, betID, userID)
	if err != nil {
		return nil, err
	}
	if participant.HasVoted() {
		err = domain.ErrAlreadyVoted
		return nil, err
	}

	// ── 2. Record the vote ───────────────────────────────────────────────────
	if err = s.betRepo.SetVote(ctx, tx, participant.ID, vote, now); err != nil {
		return nil, err
	}
	if vote == domain.OutcomeYes {
		bet.YesVotes++
	} else {
		bet.NoVotes++
	}

	// ── 3. Resolve early once a majority agrees, otherwise save the tally ────
	if bet.HasMajority() {
		if err = s.resolveLocked(ctx, tx, bet, now); err != nil {
			return nil, err
		}
	} else if err = s.betRepo.Save(ctx, tx, bet); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("privatebet_service.CastVote: commit: %w", err)
	}

	return s.GetBet(ctx, userID, betID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Resolution
// ──────────────────────────────────────────────────────────────────────────────

// resolveLocked finishes a bet whose voting is decided: the side with the
// vote plurality splits the pool minus the platform fee; a tie cancels the
// bet with refunds. The bet row is already locked.
func (s *PrivateBetService) resolveLocked(ctx context.Context, tx *sqlx.Tx, bet *domain.PrivateBet, now time.Time) error {
	winner, ok := bet.VoteWinner()
	if !ok {
		return s.cancelLocked(ctx, tx, bet, now)
	}

	participants, err := s.betRepo.ListParticipants(ctx, tx, bet.ID)
	if err != nil {
		return err
	}
	var winners []*domain.PrivateBetParticipant
	for _, p := range participants {
		if p.Outcome == winner {
			winners = append(winners, p)
		}
	}
	if len(winners) == 0 {
		return s.cancelLocked(ctx, tx, bet, now)
	}

	fee := domain.RoundPRC(bet.TotalPool.Mul(betFeeRate))
	perWinner := domain.RoundPRC(bet.TotalPool.Sub(fee).Div(decimal.NewFromInt(int64(len(winners)))))

	for _, p := range winners {
		if _, err = s.userRepo.GetForUpdate(ctx, tx, p.UserID); err != nil {
			return err
		}
		if err = s.userRepo.AddBalance(ctx, tx, p.UserID, perWinner); err != nil {
			return err
		}
		if err = s.betRepo.SetPayout(ctx, tx, p.ID, perWinner); err != nil {
			return err
		}
		if err = s.txRepo.Create(ctx, tx, &domain.Transaction{
			ID:          uuid.New(),
			UserID:      p.UserID,
			Type:        domain.TxBetPayout,
			Amount:      perWinner,
			Description: fmt.Sprintf("Выигрыш в споре: %s", truncateRunes(bet.Title, betTitleMaxRunes)),
			CreatedAt:   now,
		}); err != nil {
			return err
		}
	}

	bet.Status = domain.BetResolved
	bet.ResolutionOutcome = &winner
	bet.ResolvedAt = &now
	return s.betRepo.Save(ctx, tx, bet)
}

// cancelLocked voids a bet and refunds every participant's stake. The bet row
// is already locked.
func (s *PrivateBetService) cancelLocked(ctx context.Context, tx *sqlx.Tx, bet *domain.PrivateBet, now time.Time) error {
	participants, err := s.betRepo.ListParticipants(ctx, tx, bet.ID)
	if err != nil {
		return err
	}

	for _, p := range participants {
		if _, err = s.userRepo.GetForUpdate(ctx, tx, p.UserID); err != nil {
			return err
		}
		if err = s.userRepo.AddBalance(ctx, tx, p.UserID, bet.StakeAmount); err != nil {
			return err
		}
		if err = s.betRepo.SetPayout(ctx, tx, p.ID, bet.StakeAmount); err != nil {
			return err
		}
		if err = s.txRepo.Create(ctx, tx, &domain.Transaction{
			ID:          uuid.New(),
			UserID:      p.UserID,
			Type:        domain.TxBetRefund,
			Amount:      bet.StakeAmount,
			Description: fmt.Sprintf("Возврат ставки: %s", truncateRunes(bet.Title, betTitleMaxRunes)),
			CreatedAt:   now,
		}); err != nil {
			return err
		}
	}

	bet.Status = domain.BetCancelled
	return s.betRepo.Save(ctx, tx, bet)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler entry points
// ──────────────────────────────────────────────────────────────────────────────

// CloseExpired sweeps open bets past their closing time: viable ones move to
// voting, one-sided or single-participant ones are cancelled with refunds.
// Each bet gets its own transaction so one failure does not block the sweep.
func (s *PrivateBetService) CloseExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := s.betRepo.ListExpiredOpen(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("privatebet_service.CloseExpired: %w", err)
	}

	closed := 0
	for _, stale := range expired {
		if err := s.closeExpiredBet(ctx, stale.ID, now); err != nil {
			log.Printf("[bets] close expired %s: %v", stale.ID, err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *PrivateBetService) closeExpiredBet(ctx context.Context, betID uuid.UUID, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("privatebet_service.closeExpiredBet: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var bet *domain.PrivateBet
	bet, err = s.betRepo.GetForUpdate(ctx, tx, betID)
	if err != nil {
		return err
	}
	// State may have moved between the list query and the lock.
	if bet.Status != domain.BetOpen || bet.ClosesAt.After(now) {
		_ = tx.Rollback()
		return nil
	}

	if bet.ParticipantCount() < 2 || bet.IsOneSided() {
		if err = s.cancelLocked(ctx, tx, bet, now); err != nil {
			return err
		}
	} else {
		// Voting deadline stays at closes_at + 24h from creation.
		bet.Status = domain.BetVoting
		if err = s.betRepo.Save(ctx, tx, bet); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("privatebet_service.closeExpiredBet: commit: %w", err)
	}

	if bet.Status == domain.BetVoting {
		go s.notifyVotingAsync(bet.ID, bet.Title)
	}
	return nil
}

// ResolveExpiredVoting force-finishes bets whose voting deadline passed:
// plurality of cast votes wins, ties (including zero votes) cancel with
// refunds.
func (s *PrivateBetService) ResolveExpiredVoting(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := s.betRepo.ListExpiredVoting(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("privatebet_service.ResolveExpiredVoting: %w", err)
	}

	finished := 0
	for _, stale := range expired {
		if err := s.finishExpiredVoting(ctx, stale.ID, now); err != nil {
			log.Printf("[bets] resolve voting %s: %v", stale.ID, err)
			continue
		}
		finished++
	}
	return finished, nil
}

func (s *PrivateBetService) finishExpiredVoting(ctx context.Context, betID uuid.UUID, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("privatebet_service.finishExpiredVoting: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var bet *domain.PrivateBet
	bet, err = s.betRepo.GetForUpdate(ctx, tx, betID)
	if err != nil {
		return err
	}
	if bet.Status != domain.BetVoting || bet.VotingDeadline.After(now) {
		_ = tx.Rollback()
		return nil
	}

	if err = s.resolveLocked(ctx, tx, bet, now); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("privatebet_service.finishExpiredVoting: commit: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetMyBets returns the caller's bets, created or joined, newest first.
func (s *PrivateBetService) GetMyBets(ctx context.Context, userID uuid.UUID) ([]*PrivateBetRead, error) {
	views, err := s.betRepo.ListByUser(ctx, userID, myBetsLimit)
	if err != nil {
		return nil, fmt.Errorf("privatebet_service.GetMyBets: %w", err)
	}
	mine, err := s.betRepo.ListUserParticipants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("privatebet_service.GetMyBets: %w", err)
	}
	byBet := make(map[uuid.UUID]*domain.PrivateBetParticipant, len(mine))
	for _, p := range mine {
		byBet[p.BetID] = p
	}

	reads := make([]*PrivateBetRead, 0, len(views))
	for _, v := range views {
		reads = append(reads, s.betRead(v, byBet[v.ID]))
	}
	return reads, nil
}

// GetBet returns the full detail of a bet. Participants only; the creator is
// always the first participant.
func (s *PrivateBetService) GetBet(ctx context.Context, userID, betID uuid.UUID) (*PrivateBetDetail, error) {
	view, err := s.betRepo.GetViewByID(ctx, betID)
	if err != nil {
		return nil, err
	}
	mine, err := s.betRepo.GetParticipant(ctx, betID, userID)
	if err != nil {
		return nil, err
	}
	return s.betDetail(ctx, view, mine, userID)
}

// LookupByCode finds a bet by invite code for the join screen. Open to any
// authenticated user.
func (s *PrivateBetService) LookupByCode(ctx context.Context, userID uuid.UUID, code string) (*PrivateBetRead, error) {
	view, err := s.betRepo.GetViewByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	mine, err := s.betRepo.GetParticipant(ctx, view.ID, userID)
	if err != nil && !errors.Is(err, domain.ErrNotParticipant) {
		return nil, err
	}
	return s.betRead(view, mine), nil
}

// Preview is LookupByCode without a caller, for the bot's share pages.
func (s *PrivateBetService) Preview(ctx context.Context, code string) (*PrivateBetRead, error) {
	view, err := s.betRepo.GetViewByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	return s.betRead(view, nil), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────────────────────────

// generateInviteCode draws random codes until one is free. The UNIQUE
// constraint on invite_code still backstops a race between two creations.
func (s *PrivateBetService) generateInviteCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < inviteCodeRetries; attempt++ {
		buf := make([]byte, inviteCodeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("privatebet_service.generateInviteCode: %w", err)
		}
		for i := range buf {
			buf[i] = inviteCodeAlphabet[int(buf[i])%len(inviteCodeAlphabet)]
		}
		code := string(buf)

		exists, err := s.betRepo.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("privatebet_service.generateInviteCode: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.ErrInviteCodeExhausted
}

// notifyVotingAsync fans the voting announcement out to every participant
// with a linked Telegram account.
func (s *PrivateBetService) notifyVotingAsync(betID uuid.UUID, title string) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := s.betRepo.ListParticipantTelegramIDs(ctx, betID)
	if err != nil || len(ids) == 0 {
		return
	}
	s.notifier.VotingStarted(ctx, ids, title, betID, s.cfg.Server.WebAppURL)
}

// betRead projects a bet view, annotating the caller's participation when
// known.
func (s *PrivateBetService) betRead(v *domain.PrivateBetView, mine *domain.PrivateBetParticipant) *PrivateBetRead {
	read := &PrivateBetRead{
		ID:                v.ID,
		Title:             v.Title,
		StakeAmount:       v.StakeAmount,
		InviteCode:        v.InviteCode,
		Status:            v.Status,
		ClosesAt:          v.ClosesAt,
		VotingDeadline:    v.VotingDeadline,
		YesCount:          v.YesCount,
		NoCount:           v.NoCount,
		TotalPool:         v.TotalPool,
		CreatedAt:         v.CreatedAt,
		CreatorName:       v.CreatorFirstName,
		ResolutionOutcome: v.ResolutionOutcome,
	}
	if mine != nil {
		outcome := mine.Outcome
		payout := mine.Payout
		read.MyOutcome = &outcome
		read.MyPayout = &payout
	}
	return read
}

func (s *PrivateBetService) betDetail(ctx context.Context, v *domain.PrivateBetView, mine *domain.PrivateBetParticipant, userID uuid.UUID) (*PrivateBetDetail, error) {
	participants, err := s.betRepo.ListParticipantViews(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	detail := &PrivateBetDetail{
		PrivateBetRead: *s.betRead(v, mine),
		Description:    v.Description,
		YesVotes:       v.YesVotes,
		NoVotes:        v.NoVotes,
		ResolvedAt:     v.ResolvedAt,
		IsCreator:      v.CreatedBy == userID,
		Participants:   participants,
	}
	if mine != nil {
		detail.MyVote = mine.Vote
	}
	return detail, nil
}
