package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/payment-switch/internal/store"
	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a per-connector sliding window rate limiter using
// Redis. The per-second limit comes from connector configuration; a
// throttled call becomes a synthetic 429 outcome in the dispatch pipeline.
// A Lua script atomically cleans expired entries, checks the count, and adds
// new entries.
type RateLimiter struct {
	redisClient *redis.Client
	config      *store.ConfigStore
	logger      *slog.Logger
	script      *redis.Script
}

// Lua script for atomic sliding window rate limiting.
// 1. Remove entries older than the window
// 2. Count remaining entries
// 3. If under the limit, add a new entry and return 1 (allowed)
// 4. If at/over the limit, return 0 (denied)
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

-- Remove entries outside the sliding window
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

-- Count current entries in the window
local count = redis.call('ZCARD', key)

if count < limit then
    -- Under the limit: add this request and allow
    redis.call('ZADD', key, now, member)
    -- Set TTL so the key auto-expires after the window
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    -- At the limit: deny
    return 0
end
`)

func NewRateLimiter(redisClient *redis.Client, config *store.ConfigStore, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		config:      config,
		logger:      logger,
		script:      slidingWindowScript,
	}
}

func rlKey(connectorName string) string {
	return fmt.Sprintf("rl:%s", connectorName)
}

// Allow checks if an outbound call to this connector is within its
// configured rate limit. Returns true if allowed, false if rate limited.
// It satisfies the dispatch pipeline's Limiter interface.
func (rl *RateLimiter) Allow(ctx context.Context, connectorName string) bool {
	limit, ok, err := rl.config.GetInt(ctx, fmt.Sprintf(store.KeyConnectorRateLimit, connectorName))
	if err != nil {
		rl.logger.Error("rate limit config lookup failed", "error", err, "connector", connectorName)
		return true // Fail open — allow the call if config is unreadable
	}
	if !ok || limit <= 0 {
		return true // No rate limit configured
	}

	key := rlKey(connectorName)
	now := time.Now().UnixMilli()
	window := int64(1000) // 1 second window in milliseconds
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000) // unique member

	result, err := rl.script.Run(ctx, rl.redisClient, []string{key},
		now, window, limit, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "connector", connectorName)
		return true // Fail open — allow the call if Redis fails
	}

	if result == 0 {
		rl.logger.Debug("rate limited",
			"connector", connectorName,
			"limit", limit,
		)
		return false
	}

	return true
}
