package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/talentbridge/hrplatform/internal/apperror"
	"github.com/talentbridge/hrplatform/internal/metrics"
)

// rateLimitKeyPrefix namespaces limiter counters in Redis.
const rateLimitKeyPrefix = "ratelimit:"

// RateRule is a fixed-window limit: at most Limit requests per client IP in
// each Window. Name labels the counter key and the rejection metric.
type RateRule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// RateLimiter counts requests per rule and client in Redis so limits hold
// across API replicas.
type RateLimiter struct {
	redis *redis.Client
}

// NewRateLimiter creates a limiter backed by the given Redis client.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{redis: rdb}
}

// Allow records one hit for client under rule. When the limit is exceeded
// it returns false and the time until the window resets.
func (l *RateLimiter) Allow(ctx context.Context, rule RateRule, client string) (bool, time.Duration, error) {
	key := rateLimitKeyPrefix + rule.Name + ":" + client

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, rule.Window).Err(); err != nil {
			return true, 0, fmt.Errorf("setting expiry on %s: %w", key, err)
		}
	}
	if count <= int64(rule.Limit) {
		return true, 0, nil
	}

	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil {
		return false, rule.Window, nil
	}
	if ttl < 0 {
		// The first hit's EXPIRE was lost; restart the window.
		if err := l.redis.Expire(ctx, key, rule.Window).Err(); err != nil {
			slog.Warn("failed to restore rate limit expiry",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
		ttl = rule.Window
	}
	return false, ttl, nil
}

// Middleware enforces rule per client IP. Redis failures let the request
// through and are logged.
func (l *RateLimiter) Middleware(rule RateRule) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowed, retryAfter, err := l.Allow(c.Request().Context(), rule, c.RealIP())
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("limiter", rule.Name),
					slog.Any("error", err),
				)
				return next(c)
			}
			if !allowed {
				metrics.RecordRateLimited(rule.Name)
				secs := int((retryAfter + time.Second - 1) / time.Second)
				c.Response().Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				return apperror.NewTooManyRequests("Rate limit exceeded. Please try again later.")
			}
			return next(c)
		}
	}
}
