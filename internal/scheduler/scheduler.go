// Package scheduler manages the background goroutines that keep the platform
// ticking without operator attention:
//  1. closeMarketsLoop – flips open markets past closes_at to trading_closed.
//  2. closeBetsLoop    – moves expired private bets into voting (or refunds).
//  3. votingLoop       – force-resolves private bets whose voting window ended.
//  4. leaderboardLoop  – recomputes the cached leaderboard.
//  5. digestLoop       – sends the morning market digest over Telegram.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/service"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tunables
// ──────────────────────────────────────────────────────────────────────────────

const (
	marketSweepInterval = 1 * time.Minute
	betSweepInterval    = 1 * time.Minute
	votingSweepInterval = 5 * time.Minute
	leaderboardInterval = 5 * time.Minute

	digestHourUTC    = 6 // send the daily digest at 06:00 UTC
	digestMarkets    = 5
	digestRecipients = 1000
)

// ──────────────────────────────────────────────────────────────────────────────
// DigestNotifier interface — minimally required from the Telegram client
// ──────────────────────────────────────────────────────────────────────────────

// DigestNotifier is the slice of the Telegram notifier the digest job needs.
// Declared here so the scheduler package does not depend on the notify
// implementation. Implemented by notify.Telegram.
type DigestNotifier interface {
	DailyDigest(ctx context.Context, telegramIDs []int64, marketTitles []string) (sent int, blocked []int64)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler wires together the services and runs the background loops. Call
// Start(ctx) once from main(); cancel the context to shut it down gracefully.
type Scheduler struct {
	markets     *service.MarketService
	bets        *service.PrivateBetService
	leaderboard *service.LeaderboardService
	users       *service.UserService
	notifier    DigestNotifier
	cfg         *config.Config
	logger      *slog.Logger
}

// NewScheduler creates a Scheduler. notifier may be nil; the digest loop then
// stays idle.
func NewScheduler(
	markets *service.MarketService,
	bets *service.PrivateBetService,
	leaderboard *service.LeaderboardService,
	users *service.UserService,
	notifier DigestNotifier,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		markets:     markets,
		bets:        bets,
		leaderboard: leaderboard,
		users:       users,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start launches the background goroutines. It returns immediately; all loops
// run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.closeMarketsLoop(ctx)
	go s.closeBetsLoop(ctx)
	go s.votingLoop(ctx)
	go s.leaderboardLoop(ctx)
	go s.digestLoop(ctx)
	s.logger.Info("scheduler started")
}

// ──────────────────────────────────────────────────────────────────────────────
// closeMarketsLoop
// ──────────────────────────────────────────────────────────────────────────────

// closeMarketsLoop stops trading on markets whose closing time has passed.
// Resolution stays with the admins; this only freezes the books.
func (s *Scheduler) closeMarketsLoop(ctx context.Context) {
	defer s.recoverAndLog("closeMarketsLoop")

	ticker := time.NewTicker(marketSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("closeMarketsLoop: shutting down")
			return
		case <-ticker.C:
			closed, err := s.markets.CloseExpired(ctx)
			if err != nil {
				s.logger.Error("closeMarketsLoop: CloseExpired", "err", err)
				continue
			}
			if closed > 0 {
				s.logger.Info("markets closed for trading", "count", closed)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// closeBetsLoop
// ──────────────────────────────────────────────────────────────────────────────

// closeBetsLoop moves expired private bets into their voting phase; one-sided
// and under-filled bets are refunded instead.
func (s *Scheduler) closeBetsLoop(ctx context.Context) {
	defer s.recoverAndLog("closeBetsLoop")

	ticker := time.NewTicker(betSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("closeBetsLoop: shutting down")
			return
		case <-ticker.C:
			n, err := s.bets.CloseExpired(ctx)
			if err != nil {
				s.logger.Error("closeBetsLoop: CloseExpired", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("private bets closed", "count", n)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// votingLoop
// ──────────────────────────────────────────────────────────────────────────────

// votingLoop settles private bets whose voting deadline has passed, whatever
// votes came in by then.
func (s *Scheduler) votingLoop(ctx context.Context) {
	defer s.recoverAndLog("votingLoop")

	ticker := time.NewTicker(votingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("votingLoop: shutting down")
			return
		case <-ticker.C:
			n, err := s.bets.ResolveExpiredVoting(ctx)
			if err != nil {
				s.logger.Error("votingLoop: ResolveExpiredVoting", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("private bets settled after voting deadline", "count", n)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// leaderboardLoop
// ──────────────────────────────────────────────────────────────────────────────

// leaderboardLoop keeps the cached leaderboard warm so the read path never
// pays for the ranking query.
func (s *Scheduler) leaderboardLoop(ctx context.Context) {
	defer s.recoverAndLog("leaderboardLoop")

	// Warm the cache right away instead of waiting out the first tick.
	if err := s.leaderboard.Refresh(ctx); err != nil {
		s.logger.Warn("leaderboardLoop: initial refresh failed", "err", err)
	}

	ticker := time.NewTicker(leaderboardInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("leaderboardLoop: shutting down")
			return
		case <-ticker.C:
			if err := s.leaderboard.Refresh(ctx); err != nil {
				s.logger.Error("leaderboardLoop: Refresh", "err", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// digestLoop
// ──────────────────────────────────────────────────────────────────────────────

// digestLoop sleeps until the next 06:00 UTC and sends the morning digest of
// the busiest open markets to every active account.
func (s *Scheduler) digestLoop(ctx context.Context) {
	defer s.recoverAndLog("digestLoop")

	if s.notifier == nil {
		return
	}

	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), digestHourUTC, 0, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		s.logger.Info("next daily digest", "time", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			s.logger.Info("digestLoop: shutting down")
			return
		case <-time.After(next.Sub(now)):
		}

		s.sendDigest(ctx)
	}
}

func (s *Scheduler) sendDigest(ctx context.Context) {
	titles, err := s.markets.TopOpenTitles(ctx, digestMarkets)
	if err != nil {
		s.logger.Error("digestLoop: TopOpenTitles", "err", err)
		return
	}
	if len(titles) == 0 {
		s.logger.Info("digestLoop: no open markets, skipping digest")
		return
	}
	ids, err := s.users.ActiveTelegramIDs(ctx, digestRecipients)
	if err != nil {
		s.logger.Error("digestLoop: ActiveTelegramIDs", "err", err)
		return
	}

	sent, blocked := s.notifier.DailyDigest(ctx, ids, titles)
	s.logger.Info("daily digest sent", "recipients", sent, "markets", len(titles))

	// Recipients who blocked the bot drop out of future broadcasts. They come
	// back automatically on their next login.
	for _, id := range blocked {
		if err := s.users.DeactivateTelegram(ctx, id); err != nil {
			s.logger.Warn("digestLoop: deactivate blocked recipient", "telegram_id", id, "err", err)
		}
	}
	if len(blocked) > 0 {
		s.logger.Info("blocked recipients deactivated", "count", len(blocked))
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
