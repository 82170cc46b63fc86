// Package cache wraps Redis for the read-heavy paths: market listings, order
// book snapshots, the leaderboard, and one-shot web login tokens.
//
// Two classes of operations live here. The JSON helpers are best-effort: a
// Redis outage degrades to database reads and never fails a request. The
// plain string operations return errors and back the login-token flow, where
// silently losing a token would strand the user mid-login.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist or has expired.
var ErrMiss = errors.New("cache: key not found")

// Client wraps a Redis connection.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis using a URL of the form
// redis://[:password@]host:port/db.
func New(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache.New: parse %q: %w", url, err)
	}
	return &Client{rdb: redis.NewClient(opts)}, nil
}

// Ping verifies the connection. Called once at startup.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache.Ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ──────────────────────────────────────────────────────────────────────────────
// Strict string operations — login tokens
// ──────────────────────────────────────────────────────────────────────────────

// Set stores a string value with a TTL.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache.Set %s: %w", key, err)
	}
	return nil
}

// Get returns the string value at key, or ErrMiss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache.Get %s: %w", key, err)
	}
	return val, nil
}

// Del removes keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache.Del: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Best-effort JSON caching
// ──────────────────────────────────────────────────────────────────────────────

// GetJSON loads and unmarshals a cached value into dest. Returns false on a
// miss or any Redis/decode failure.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache read failed", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Warn("cache decode failed", "key", key, "err", err)
		return false
	}
	return true
}

// SetJSON marshals and stores a value with a TTL. Failures are logged and
// swallowed.
func (c *Client) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache encode failed", "key", key, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		slog.Warn("cache write failed", "key", key, "err", err)
	}
}

// Invalidate removes keys, best-effort.
func (c *Client) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache invalidate failed", "keys", keys, "err", err)
	}
}

// InvalidatePrefix removes every key under a prefix, best-effort. The market
// list cache is keyed per filter combination, so invalidation sweeps the
// whole prefix.
func (c *Client) InvalidatePrefix(ctx context.Context, prefix string) {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			slog.Warn("cache prefix scan failed", "prefix", prefix, "err", err)
			return
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("cache prefix invalidate failed", "prefix", prefix, "err", err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Key builders
// ──────────────────────────────────────────────────────────────────────────────

// MarketListPrefix is the shared prefix of all market-list cache keys.
const MarketListPrefix = "markets:list"

// MarketListKey builds the cache key for one list page. Every filter
// combination caches separately.
func MarketListKey(category, status, cursor string, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", MarketListPrefix, category, status, cursor, limit)
}

// MarketKey is the cache key for one market's detail view.
func MarketKey(marketID uuid.UUID) string {
	return "market:" + marketID.String()
}

// OrderBookKey is the cache key for one market's aggregated book.
func OrderBookKey(marketID uuid.UUID) string {
	return "orderbook:" + marketID.String()
}

// LeaderboardKey is the cache key for one leaderboard period.
func LeaderboardKey(period string) string {
	return "leaderboard:" + period
}

// WebLoginKey is the one-shot token key for the bot deep-link login flow.
func WebLoginKey(token string) string {
	return "web_login:" + token
}
