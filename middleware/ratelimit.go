package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kroma-labs/sentinel-connect/connect"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrRateLimited is passed to next when a request is over its limit.
var ErrRateLimited = connect.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limit is the rate limit in requests per second.
	Limit rate.Limit

	// Burst is the maximum burst size (token bucket capacity).
	Burst int

	// KeyFunc extracts a key from the request for per-key rate limiting.
	// If nil, a global rate limit is applied to all requests.
	KeyFunc KeyFunc

	// Redis enables distributed rate limiting across multiple instances.
	// If nil, an in-memory rate limiter is used (single-instance only).
	Redis redis.UniversalClient

	// RedisKeyPrefix is the prefix for Redis keys.
	// Default: "ratelimit:"
	RedisKeyPrefix string

	// KeyTTL expires idle Redis buckets.
	// Default: 1 minute
	KeyTTL time.Duration
}

// DefaultRateLimitConfig returns a default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:          100,
		Burst:          200,
		RedisKeyPrefix: "ratelimit:",
		KeyTTL:         time.Minute,
	}
}

type allowFunc func(ctx context.Context, key string) (bool, error)

// RateLimit returns middleware that limits the request rate with a token
// bucket. A limited request continues with ErrRateLimited, so the error
// renderer of the chain, or the host, writes the 429. When Redis fails the
// request is let through.
func RateLimit(cfg RateLimitConfig) connect.HandlerFunc {
	if cfg.RedisKeyPrefix == "" {
		cfg.RedisKeyPrefix = "ratelimit:"
	}
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = time.Minute
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(*http.Request) string { return "global" }
	}

	allow := memoryLimiter(cfg)
	if cfg.Redis != nil {
		allow = redisLimiter(cfg)
	}

	return func(w http.ResponseWriter, r *http.Request, next connect.Next) {
		ok, err := allow(r.Context(), keyFunc(r))
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			next(nil)
			return
		}
		if !ok {
			w.Header().Set("Retry-After", "1")
			next(ErrRateLimited)
			return
		}
		next(nil)
	}
}

func memoryLimiter(cfg RateLimitConfig) allowFunc {
	var mu sync.RWMutex
	limiters := make(map[string]*rate.Limiter)

	return func(_ context.Context, key string) (bool, error) {
		mu.RLock()
		limiter, exists := limiters[key]
		mu.RUnlock()

		if !exists {
			mu.Lock()
			limiter, exists = limiters[key]
			if !exists {
				limiter = rate.NewLimiter(cfg.Limit, cfg.Burst)
				limiters[key] = limiter
			}
			mu.Unlock()
		}
		return limiter.Allow(), nil
	}
}

// tokenBucketScript refills tokens for the time elapsed since the last
// call, caps them at burst and takes one if available. State is a hash of
// tokens and last_update (ms).
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_update')
local tokens = tonumber(data[1])
local last_update = tonumber(data[2])

if tokens == nil then
    tokens = burst
    last_update = now
end

local elapsed_ms = math.max(0, now - last_update)
tokens = math.min(burst, tokens + (elapsed_ms / 1000.0) * rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
redis.call('EXPIRE', key, ttl)
return allowed
`)

func redisLimiter(cfg RateLimitConfig) allowFunc {
	rps := float64(cfg.Limit)
	ttl := int(cfg.KeyTTL.Seconds())
	if ttl < 1 {
		ttl = 1
	}

	return func(ctx context.Context, key string) (bool, error) {
		now := time.Now().UnixMilli()
		allowed, err := tokenBucketScript.Run(ctx, cfg.Redis, []string{cfg.RedisKeyPrefix + key}, rps, cfg.Burst, now, ttl).
			Int()
		if err != nil {
			return false, err
		}
		return allowed == 1, nil
	}
}
