// Package main is the entry point for the predict.ru background worker. It
// runs the periodic jobs (market close sweeps, private-bet voting, leaderboard
// refresh, daily digest) and the Telegram bot long-poller, deployed separately
// from the API server so job cadence is not coupled to API restarts.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/predictru/backend/internal/cache"
	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/notify"
	"github.com/predictru/backend/internal/repository"
	"github.com/predictru/backend/internal/scheduler"
	"github.com/predictru/backend/internal/service"
)

// loginAdapter lets the bot poller complete web-login handshakes through the
// auth service without the notify package importing service types.
type loginAdapter struct {
	auth *service.AuthService
}

func (a loginAdapter) ConfirmBotLogin(ctx context.Context, token string, s notify.LoginSender) error {
	u := &service.TelegramUser{
		ID:           s.TelegramID,
		FirstName:    s.FirstName,
		LanguageCode: s.LanguageCode,
	}
	if s.Username != "" {
		u.Username = &s.Username
	}
	if s.LastName != "" {
		u.LastName = &s.LastName
	}
	return a.auth.BotLoginConfirm(ctx, token, u)
}

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting predict.ru worker", "env", cfg.Server.Env)

	// ── Database ──────────────────────────────────────────────────────────────
	// Migrations are applied by the API server; the worker only connects.
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── Redis cache ───────────────────────────────────────────────────────────
	cacheClient, err := cache.New(cfg.Redis.URL)
	if err != nil {
		logger.Error("redis setup failed", "err", err)
		os.Exit(1)
	}
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = cacheClient.Ping(pingCtx)
	cancelPing()
	if err != nil {
		logger.Error("redis ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("redis connected")

	// ── Repositories ──────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	marketRepo := repository.NewMarketRepository(db)
	posRepo := repository.NewPositionRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	betRepo := repository.NewPrivateBetRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(db, userRepo, txRepo, cacheClient, cfg)
	userSvc := service.NewUserService(db, userRepo, posRepo, txRepo, cfg)
	marketSvc := service.NewMarketService(db, marketRepo, posRepo, txRepo, proposalRepo, commentRepo, userRepo, cacheClient, cfg)
	betSvc := service.NewPrivateBetService(db, betRepo, userRepo, txRepo, cfg)
	leaderboardSvc := service.NewLeaderboardService(userRepo, cacheClient, cfg)

	// ── Telegram bot ──────────────────────────────────────────────────────────
	var notifier *notify.Telegram
	if cfg.Telegram.BotToken != "" {
		notifier = notify.New(cfg.Telegram.BotToken)
		betSvc.SetNotifier(notifier)
		logger.Info("telegram bot enabled", "bot", cfg.Telegram.BotUsername)
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, bot poller and digest disabled")
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Scheduler ─────────────────────────────────────────────────────────────
	var digest scheduler.DigestNotifier
	if notifier != nil {
		digest = notifier
	}
	sched := scheduler.NewScheduler(marketSvc, betSvc, leaderboardSvc, userSvc, digest, cfg, logger)
	sched.Start(ctx)

	// ── Bot poller ────────────────────────────────────────────────────────────
	if notifier != nil {
		poller := notify.NewPoller(notifier, loginAdapter{auth: authSvc}, cfg.Server.WebAppURL)
		go poller.Run(ctx)
	}

	// ── Shutdown ──────────────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	db.Close()
	logger.Info("worker stopped cleanly")
}
