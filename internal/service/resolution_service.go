package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictru/backend/internal/cache"
	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/domain"
	"github.com/predictru/backend/internal/notify"
	"github.com/predictru/backend/internal/repository"
)

// ResolutionNotifier is the minimal interface ResolutionService needs from
// the Telegram notifier. Implemented by notify.Telegram.
type ResolutionNotifier interface {
	MarketResolved(ctx context.Context, marketTitle string, outcome domain.Outcome, results []notify.ResolutionResult)
}

// ──────────────────────────────────────────────────────────────────────────────
// Result types
// ──────────────────────────────────────────────────────────────────────────────

// ResolveResult reports a completed market resolution.
type ResolveResult struct {
	MarketID       uuid.UUID      `json:"market_id"`
	Outcome        domain.Outcome `json:"outcome"`
	WinnersCount   int            `json:"winners_count"`
	TotalPositions int            `json:"total_positions"`
}

// CancelMarketResult reports a cancelled market and how many positions were
// refunded.
type CancelMarketResult struct {
	MarketID          uuid.UUID `json:"market_id"`
	RefundedPositions int       `json:"refunded_positions"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ResolutionService
// ──────────────────────────────────────────────────────────────────────────────

// ResolutionService settles markets: it pays every winning position 1.00 PRC
// per share, refunds positions at cost when a market is voided, and keeps
// lifetime profit and win-rate statistics current. Settlement paths lock the
// market row first, which serializes them against in-flight trading.
type ResolutionService struct {
	db          *sqlx.DB
	marketRepo  *repository.MarketRepository
	userRepo    *repository.UserRepository
	posRepo     *repository.PositionRepository
	txRepo      *repository.TransactionRepository
	books       *OrderBookService
	cache       *cache.Client
	cfg         *config.Config
	broadcaster Broadcaster        // injected after the WS hub is built
	notifier    ResolutionNotifier // injected after the notifier is built
}

// NewResolutionService builds a ResolutionService.
func NewResolutionService(
	db *sqlx.DB,
	marketRepo *repository.MarketRepository,
	userRepo *repository.UserRepository,
	posRepo *repository.PositionRepository,
	txRepo *repository.TransactionRepository,
	books *OrderBookService,
	cacheClient *cache.Client,
	cfg *config.Config,
) *ResolutionService {
	return &ResolutionService{
		db:         db,
		marketRepo: marketRepo,
		userRepo:   userRepo,
		posRepo:    posRepo,
		txRepo:     txRepo,
		books:      books,
		cache:      cacheClient,
		cfg:        cfg,
	}
}

// SetBroadcaster injects the WS hub dependency post-construction.
func (s *ResolutionService) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// SetNotifier injects the Telegram notifier post-construction.
func (s *ResolutionService) SetNotifier(n ResolutionNotifier) { s.notifier = n }

// ──────────────────────────────────────────────────────────────────────────────
// ResolveMarket
// ──────────────────────────────────────────────────────────────────────────────

// ResolveMarket settles a market on the given outcome. The whole settlement
// is one transaction: the status flip, the order-book unwind for CLOB
// markets, every winner payout, and the statistics updates land together or
// not at all. Losing positions are silent; their cost was the realised loss
// at trade time.
func (s *ResolutionService) ResolveMarket(ctx context.Context, marketID uuid.UUID, outcome domain.Outcome) (*ResolveResult, error) {
	// ── 1. Validate ──────────────────────────────────────────────────────────
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.ResolveMarket: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 2. Lock the market and flip it to resolved ───────────────────────────
	market, err := s.marketRepo.GetForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.ResolveMarket: lock market: %w", err)
	}
	if err = s.marketRepo.Resolve(ctx, tx, marketID, outcome); err != nil {
		return nil, err
	}

	// ── 3. Unwind the order book before paying out ───────────────────────────
	// Reservations must be back on balances before payouts so nothing stays
	// locked behind orders that can never fill.
	if market.Mechanism == domain.MechanismCLOB {
		if _, err = s.books.CancelAllForMarket(ctx, tx, marketID); err != nil {
			return nil, fmt.Errorf("resolution_service.ResolveMarket: unwind book: %w", err)
		}
	}

	// ── 4. Pay winners, refresh statistics ───────────────────────────────────
	positions, err := s.posRepo.ListByMarket(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.ResolveMarket: list positions: %w", err)
	}

	winners := 0
	results := make([]notify.ResolutionResult, 0, len(positions))
	for _, pos := range positions {
		var user *domain.User
		user, err = s.userRepo.GetForUpdate(ctx, tx, pos.UserID)
		if err != nil {
			return nil, fmt.Errorf("resolution_service.ResolveMarket: lock user: %w", err)
		}

		won := pos.Outcome == outcome && pos.Shares.IsPositive()
		payout := decimal.Zero
		if won {
			// Every winning share settles at exactly 1.00 PRC.
			payout = domain.RoundPRC(pos.Shares)
			if err = s.userRepo.AddBalance(ctx, tx, user.ID, payout); err != nil {
				return nil, fmt.Errorf("resolution_service.ResolveMarket: pay out: %w", err)
			}
			if err = s.userRepo.AddProfit(ctx, tx, user.ID, payout.Sub(pos.TotalCost)); err != nil {
				return nil, fmt.Errorf("resolution_service.ResolveMarket: add profit: %w", err)
			}
			err = s.txRepo.Create(ctx, tx, &domain.Transaction{
				ID:           uuid.New(),
				UserID:       user.ID,
				MarketID:     &market.ID,
				Type:         domain.TxPayout,
				Amount:       payout,
				Shares:       pos.Shares,
				Outcome:      &outcome,
				PriceAtTrade: one,
				Description:  fmt.Sprintf("Payout for %s", market.Title),
				CreatedAt:    time.Now().UTC(),
			})
			if err != nil {
				return nil, fmt.Errorf("resolution_service.ResolveMarket: payout txn: %w", err)
			}
			winners++
		}

		if user.TelegramID != 0 {
			results = append(results, notify.ResolutionResult{
				TelegramID: user.TelegramID,
				Won:        won,
				Payout:     payout,
			})
		}

		// Win rate counts payout transactions, so it is recomputed after this
		// market's payout has landed.
		if user.TotalTrades > 0 {
			var wins int
			wins, err = s.userRepo.CountPayoutWins(ctx, tx, user.ID)
			if err != nil {
				return nil, fmt.Errorf("resolution_service.ResolveMarket: count wins: %w", err)
			}
			rate := decimal.NewFromInt(int64(wins)).
				Div(decimal.NewFromInt(int64(user.TotalTrades))).
				Mul(decimal.NewFromInt(100)).
				RoundBank(2)
			if err = s.userRepo.UpdateWinRate(ctx, tx, user.ID, rate); err != nil {
				return nil, fmt.Errorf("resolution_service.ResolveMarket: win rate: %w", err)
			}
		}
	}

	// ── 5. Commit ────────────────────────────────────────────────────────────
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("resolution_service.ResolveMarket: commit: %w", err)
	}

	log.Printf("[resolution] market %s resolved: outcome=%s winners=%d positions=%d",
		market.ID, outcome, winners, len(positions))

	// ── 6. Caches and notifications off the hot path ─────────────────────────
	go s.postResolveAsync(market.ID, market.Title, outcome, results)

	return &ResolveResult{
		MarketID:       market.ID,
		Outcome:        outcome,
		WinnersCount:   winners,
		TotalPositions: len(positions),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// CancelMarket
// ──────────────────────────────────────────────────────────────────────────────

// CancelMarket voids a market: every position is refunded its total cost and
// the shares are worthless afterwards. CLOB reservations release first so the
// refunds land on unencumbered balances.
func (s *ResolutionService) CancelMarket(ctx context.Context, marketID uuid.UUID) (*CancelMarketResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.CancelMarket: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock the market and flip it to cancelled ──────────────────────────
	market, err := s.marketRepo.GetForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.CancelMarket: lock market: %w", err)
	}
	if err = s.marketRepo.Cancel(ctx, tx, marketID); err != nil {
		return nil, err
	}

	// ── 2. Unwind the order book ─────────────────────────────────────────────
	if market.Mechanism == domain.MechanismCLOB {
		if _, err = s.books.CancelAllForMarket(ctx, tx, marketID); err != nil {
			return nil, fmt.Errorf("resolution_service.CancelMarket: unwind book: %w", err)
		}
	}

	// ── 3. Refund every funded position at cost ──────────────────────────────
	positions, err := s.posRepo.ListByMarket(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.CancelMarket: list positions: %w", err)
	}

	refunded := 0
	for _, pos := range positions {
		if !pos.TotalCost.IsPositive() {
			continue
		}
		if _, err = s.userRepo.GetForUpdate(ctx, tx, pos.UserID); err != nil {
			return nil, fmt.Errorf("resolution_service.CancelMarket: lock user: %w", err)
		}
		if err = s.userRepo.AddBalance(ctx, tx, pos.UserID, pos.TotalCost); err != nil {
			return nil, fmt.Errorf("resolution_service.CancelMarket: refund: %w", err)
		}
		err = s.txRepo.Create(ctx, tx, &domain.Transaction{
			ID:          uuid.New(),
			UserID:      pos.UserID,
			MarketID:    &market.ID,
			Type:        domain.TxPayout,
			Amount:      pos.TotalCost,
			Shares:      pos.Shares,
			Outcome:     &pos.Outcome,
			Description: fmt.Sprintf("Refund for cancelled market: %s", market.Title),
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("resolution_service.CancelMarket: refund txn: %w", err)
		}
		refunded++
	}

	// ── 4. Commit ────────────────────────────────────────────────────────────
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("resolution_service.CancelMarket: commit: %w", err)
	}

	log.Printf("[resolution] market %s cancelled: refunded=%d", market.ID, refunded)

	go s.postCancelMarketAsync(market.ID)

	return &CancelMarketResult{MarketID: market.ID, RefundedPositions: refunded}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Post-commit side effects
// ──────────────────────────────────────────────────────────────────────────────

// postResolveAsync invalidates caches and fans out resolution notifications.
// Failures here never affect the committed settlement.
func (s *ResolutionService) postResolveAsync(marketID uuid.UUID, title string, outcome domain.Outcome, results []notify.ResolutionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.cache.Invalidate(ctx, cache.MarketKey(marketID))
	s.cache.InvalidatePrefix(ctx, cache.MarketListPrefix)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMarketResolved(marketID, outcome)
	}
	if s.notifier != nil {
		s.notifier.MarketResolved(ctx, title, outcome, results)
	}
}

// postCancelMarketAsync invalidates caches after a committed cancellation.
func (s *ResolutionService) postCancelMarketAsync(marketID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.cache.Invalidate(ctx, cache.MarketKey(marketID))
	s.cache.InvalidatePrefix(ctx, cache.MarketListPrefix)
}
