// Package main is the entry point for the predict.ru prediction market API
// server. It wires together all services and starts the HTTP server alongside
// the WebSocket hub.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/predictru/backend/internal/api"
	"github.com/predictru/backend/internal/cache"
	"github.com/predictru/backend/internal/config"
	"github.com/predictru/backend/internal/notify"
	"github.com/predictru/backend/internal/repository"
	"github.com/predictru/backend/internal/service"
	"github.com/predictru/backend/internal/ws"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting predict.ru server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Database ───────────────────────────────────────────────────────────
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

	// ── 3. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 4. Redis cache ────────────────────────────────────────────────────────
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

	// ── 5. Repositories ───────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	marketRepo := repository.NewMarketRepository(db)
	posRepo := repository.NewPositionRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	betRepo := repository.NewPrivateBetRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	// ── 6. Services ───────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(db, userRepo, txRepo, cacheClient, cfg)
	userSvc := service.NewUserService(db, userRepo, posRepo, txRepo, cfg)
	marketSvc := service.NewMarketService(db, marketRepo, posRepo, txRepo, proposalRepo, commentRepo, userRepo, cacheClient, cfg)
	tradeSvc := service.NewTradeService(db, marketRepo, userRepo, posRepo, txRepo, cacheClient, cfg)
	bookSvc := service.NewOrderBookService(db, orderRepo, marketRepo, userRepo, posRepo, txRepo, cacheClient, cfg)
	resolutionSvc := service.NewResolutionService(db, marketRepo, userRepo, posRepo, txRepo, bookSvc, cacheClient, cfg)
	betSvc := service.NewPrivateBetService(db, betRepo, userRepo, txRepo, cfg)
	leaderboardSvc := service.NewLeaderboardService(userRepo, cacheClient, cfg)

	// ── 7. Telegram notifications ─────────────────────────────────────────────
	var notifier *notify.Telegram
	if cfg.Telegram.BotToken != "" {
		notifier = notify.New(cfg.Telegram.BotToken)
		tradeSvc.SetNotifier(notifier)
		resolutionSvc.SetNotifier(notifier)
		betSvc.SetNotifier(notifier)
		logger.Info("telegram notifications enabled", "bot", cfg.Telegram.BotUsername)
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, notifications disabled")
	}

	// ── 8. WebSocket hub ──────────────────────────────────────────────────────
	var allowedOrigins []string
	if ori := os.Getenv("WS_ALLOWED_ORIGINS"); ori != "" {
		for _, o := range strings.Split(ori, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(o))
		}
	}
	hub := ws.NewHub(allowedOrigins)

	tradeSvc.SetBroadcaster(hub)
	bookSvc.SetBroadcaster(hub)
	resolutionSvc.SetBroadcaster(hub)

	// ── 9. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 10. Start WS hub ──────────────────────────────────────────────────────
	go hub.Run()
	logger.Info("websocket hub started")

	// ── 11. HTTP router ───────────────────────────────────────────────────────
	// Periodic jobs (market close sweeps, bet voting, leaderboard refresh,
	// daily digest) run in cmd/worker, not here.
	router := api.SetupRouter(api.RouterDeps{
		AuthSvc:        authSvc,
		UserSvc:        userSvc,
		MarketSvc:      marketSvc,
		TradeSvc:       tradeSvc,
		OrderBookSvc:   bookSvc,
		ResolutionSvc:  resolutionSvc,
		BetSvc:         betSvc,
		LeaderboardSvc: leaderboardSvc,
		Hub:            hub,
		Cfg:            cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 12. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 13. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}
