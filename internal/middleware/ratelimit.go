package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
)

// RateLimiter caps requests per chat user in fixed windows counted in
// Redis. Requests without a userId param are keyed by client IP.
type RateLimiter struct {
	rdb     *redis.Client
	limit   int64
	window  time.Duration
	keyBase string
}

// NewRateLimiter creates a rate limiter. A nil rdb disables limiting.
func NewRateLimiter(rdb *redis.Client, maxReqs, windowSec int) *RateLimiter {
	return &RateLimiter{
		rdb:     rdb,
		limit:   int64(maxReqs),
		window:  time.Duration(windowSec) * time.Second,
		keyBase: "ratelimit:",
	}
}

// Handler returns the Fiber middleware. Redis errors let the request
// through.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		if rl.rdb == nil {
			return c.Next()
		}

		subject := c.Params("userId")
		if subject == "" {
			subject = "ip:" + c.IP()
		}
		key := rl.keyBase + subject

		count, ttl, err := rl.hit(c, key)
		if err != nil {
			slog.Warn("rate limiter unavailable", "key", key, "error", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(rl.limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, rl.limit-count), 10))
		c.Set("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > rl.limit {
			slog.Info("rate limit exceeded", "subject", subject, "count", count)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"retry_after": int(ttl.Seconds()),
			})
		}
		return c.Next()
	}
}

// hit counts one request and returns the window's count and remaining TTL.
// INCR and EXPIRE NX run in one transaction so a key never outlives its
// window without an expiry.
func (rl *RateLimiter) hit(c fiber.Ctx, key string) (int64, time.Duration, error) {
	ctx := c.Context()
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rl.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, rl.window)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = rl.window
	}
	return incr.Val(), remaining, nil
}
