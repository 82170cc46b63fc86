// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        // e.g. "8080"
	Env          string        // "development" | "production"
	ReadTimeout  time.Duration // default 10s
	WriteTimeout time.Duration // default 10s
	AppURL       string        // public site URL
	WebAppURL    string        // Telegram mini-app URL; also the CORS origin
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// RedisConfig holds cache connection settings.
type RedisConfig struct {
	URL string // e.g. "redis://localhost:6379/0"
}

// JWTConfig holds JWT signing settings.
type JWTConfig struct {
	Secret string        // must be set
	TTL    time.Duration // default 168h (7 days)
}

// TelegramConfig holds bot credentials and the admin allow-list.
type TelegramConfig struct {
	BotToken    string  // required for auth verification and notifications
	BotUsername string  // default "predictru_bot"
	AdminIDs    []int64 // telegram ids with admin rights
}

// IsAdmin returns true when the given telegram id is on the admin list.
func (t TelegramConfig) IsAdmin(telegramID int64) bool {
	for _, id := range t.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// TradingConfig holds market and fee settings.
type TradingConfig struct {
	FeePercent    float64 // commission on trades, e.g. 2.0 = 2%
	MinBetDefault float64 // default per-market minimum (PRC)
	MaxBetDefault float64 // default per-market maximum (PRC)
	LiquidityB    float64 // default LMSR liquidity parameter
}

// BonusConfig holds play-currency grant amounts.
type BonusConfig struct {
	Signup          float64 // credited once at first login
	Daily           float64 // claimable once per UTC day
	ReferralInviter float64 // credited to the referrer per applied code
	ReferralInvitee float64 // credited to the new user applying a code
}

// LeaderboardConfig holds leaderboard cache settings.
type LeaderboardConfig struct {
	Size     int           // entries per leaderboard, default 100
	CacheTTL time.Duration // default 5m
}

// RateLimitConfig holds per-client HTTP throttling settings.
type RateLimitConfig struct {
	RPS   float64 // sustained requests per second per client
	Burst int     // burst allowance
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server      ServerConfig
	DB          DBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Telegram    TelegramConfig
	Trading     TradingConfig
	Bonus       BonusConfig
	Leaderboard LeaderboardConfig
	RateLimit   RateLimitConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}

	if c.IsProd() {
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
		}
		if c.Telegram.BotToken == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN must be set in production"))
		}
	}

	if c.Trading.FeePercent < 0 || c.Trading.FeePercent >= 100 {
		errs = append(errs, fmt.Errorf(
			"TRADE_FEE_PERCENT must be in [0, 100), got %.2f", c.Trading.FeePercent,
		))
	}
	if c.Trading.LiquidityB <= 0 {
		errs = append(errs, fmt.Errorf(
			"LIQUIDITY_B_DEFAULT must be positive, got %.2f", c.Trading.LiquidityB,
		))
	}
	if c.Trading.MinBetDefault >= c.Trading.MaxBetDefault {
		errs = append(errs, fmt.Errorf(
			"MIN_BET_DEFAULT (%.2f) must be below MAX_BET_DEFAULT (%.2f)",
			c.Trading.MinBetDefault, c.Trading.MaxBetDefault,
		))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:         getEnv("SERVER_PORT", "8080"),
		Env:          getEnv("ENVIRONMENT", "development"),
		ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		AppURL:       getEnv("APP_URL", "https://predict.ru"),
		WebAppURL:    getEnv("WEBAPP_URL", "https://app.predict.ru"),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "predictru"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	cfg.Redis = RedisConfig{
		URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		Secret: getEnv("JWT_SECRET", ""),
		TTL:    getDuration("JWT_TTL", 168*time.Hour),
	}

	// ── Telegram ──────────────────────────────────────────────────────────────
	adminIDs, err := getInt64List("ADMIN_TELEGRAM_IDS")
	if err != nil {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_IDS: %w", err)
	}
	cfg.Telegram = TelegramConfig{
		BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotUsername: getEnv("TELEGRAM_BOT_USERNAME", "predictru_bot"),
		AdminIDs:    adminIDs,
	}

	// ── Trading ───────────────────────────────────────────────────────────────
	feePercent, err := getFloat("TRADE_FEE_PERCENT", 2.0)
	if err != nil {
		return nil, fmt.Errorf("TRADE_FEE_PERCENT: %w", err)
	}
	minBet, err := getFloat("MIN_BET_DEFAULT", 1.0)
	if err != nil {
		return nil, fmt.Errorf("MIN_BET_DEFAULT: %w", err)
	}
	maxBet, err := getFloat("MAX_BET_DEFAULT", 10000.0)
	if err != nil {
		return nil, fmt.Errorf("MAX_BET_DEFAULT: %w", err)
	}
	liquidityB, err := getFloat("LIQUIDITY_B_DEFAULT", 100.0)
	if err != nil {
		return nil, fmt.Errorf("LIQUIDITY_B_DEFAULT: %w", err)
	}

	cfg.Trading = TradingConfig{
		FeePercent:    feePercent,
		MinBetDefault: minBet,
		MaxBetDefault: maxBet,
		LiquidityB:    liquidityB,
	}

	// ── Bonuses ───────────────────────────────────────────────────────────────
	signupBonus, err := getFloat("SIGNUP_BONUS", 1000.0)
	if err != nil {
		return nil, fmt.Errorf("SIGNUP_BONUS: %w", err)
	}
	dailyBonus, err := getFloat("DAILY_BONUS", 50.0)
	if err != nil {
		return nil, fmt.Errorf("DAILY_BONUS: %w", err)
	}
	referralInviter, err := getFloat("REFERRAL_BONUS_INVITER", 100.0)
	if err != nil {
		return nil, fmt.Errorf("REFERRAL_BONUS_INVITER: %w", err)
	}
	referralInvitee, err := getFloat("REFERRAL_BONUS_INVITEE", 50.0)
	if err != nil {
		return nil, fmt.Errorf("REFERRAL_BONUS_INVITEE: %w", err)
	}

	cfg.Bonus = BonusConfig{
		Signup:          signupBonus,
		Daily:           dailyBonus,
		ReferralInviter: referralInviter,
		ReferralInvitee: referralInvitee,
	}

	// ── Leaderboard ───────────────────────────────────────────────────────────
	lbSize, err := getInt("LEADERBOARD_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("LEADERBOARD_SIZE: %w", err)
	}
	cfg.Leaderboard = LeaderboardConfig{
		Size:     lbSize,
		CacheTTL: getDuration("LEADERBOARD_CACHE_TTL", 5*time.Minute),
	}

	// ── Rate limiting ─────────────────────────────────────────────────────────
	rps, err := getFloat("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
	}
	burst, err := getInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_BURST: %w", err)
	}
	cfg.RateLimit = RateLimitConfig{
		RPS:   rps,
		Burst: burst,
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getInt64List parses a comma-separated list of integers, e.g. "123,456".
// An empty or unset variable yields an empty list.
func getInt64List(key string) ([]int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Fall back rather than crash on a malformed duration.
		return defaultVal
	}
	return d
}
