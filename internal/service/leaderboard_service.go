package service

import (
	"context"
	"fmt"

	"github.com/predictru/backend/internal/cache"
	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/domain"
	"github.com/predictru/backend/internal/repository"
)

// leaderboardPeriods are the periods clients may request. All three currently
// serve the same all-time ranking; per-period profit windows need a profit
// history table that does not exist yet.
var leaderboardPeriods = []string{"week", "month", "all"}

// LeaderboardService ranks active users by total profit and keeps the ranking
// warm in Redis.
type LeaderboardService struct {
	userRepo *repository.UserRepository
	cache    *cache.Client
	cfg      *config.Config
}

// NewLeaderboardService creates a LeaderboardService.
func NewLeaderboardService(userRepo *repository.UserRepository, c *cache.Client, cfg *config.Config) *LeaderboardService {
	return &LeaderboardService{userRepo: userRepo, cache: c, cfg: cfg}
}

// Refresh recomputes the ranking and rewrites every period's cache entry.
// Called by the scheduler; safe to call concurrently.
func (s *LeaderboardService) Refresh(ctx context.Context) error {
	entries, err := s.compute(ctx)
	if err != nil {
		return err
	}
	for _, period := range leaderboardPeriods {
		s.cache.SetJSON(ctx, cache.LeaderboardKey(period), entries, s.cfg.Leaderboard.CacheTTL)
	}
	return nil
}

// Get returns the ranking for a period, serving from cache when warm. Unknown
// periods fall back to the all-time board.
func (s *LeaderboardService) Get(ctx context.Context, period string) ([]domain.LeaderboardEntry, error) {
	switch period {
	case "week", "month", "all":
	default:
		period = "all"
	}

	var cached []domain.LeaderboardEntry
	if s.cache.GetJSON(ctx, cache.LeaderboardKey(period), &cached) {
		return cached, nil
	}

	entries, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, cache.LeaderboardKey(period), entries, s.cfg.Leaderboard.CacheTTL)
	return entries, nil
}

func (s *LeaderboardService) compute(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	users, err := s.userRepo.TopByProfit(ctx, s.cfg.Leaderboard.Size)
	if err != nil {
		return nil, fmt.Errorf("leaderboard_service.compute: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      u.ID,
			Username:    u.Username,
			FirstName:   u.FirstName,
			PhotoURL:    u.PhotoURL,
			TotalProfit: u.TotalProfit,
			WinRate:     u.WinRate,
			TotalTrades: u.TotalTrades,
		})
	}
	return entries, nil
}
