package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
)

// RateLimiter caps how many mutations a single user may issue per window.
type RateLimiter interface {
	// Check returns a *domain.RateLimitExceededError once userID is over the limit.
	Check(ctx context.Context, userID string) error
	Limit() int
}

type slidingWindowLimiter struct {
	client *redis.Client
	scope  string
	limit  int
	window time.Duration
}

// NewRateLimiter returns a Redis-backed sliding-window rate limiter.
// scope namespaces the keys so separate limiters do not share counts.
func NewRateLimiter(client *redis.Client, scope string, limit int, window time.Duration) RateLimiter {
	return &slidingWindowLimiter{client: client, scope: scope, limit: limit, window: window}
}

func (r *slidingWindowLimiter) Limit() int { return r.limit }

// Check records one event for userID and rejects it when the window already holds
// more than limit events. A sorted set keyed by nanosecond timestamp is the window.
func (r *slidingWindowLimiter) Check(ctx context.Context, userID string) error {
	now := time.Now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	rkey := "ratelimit:" + r.scope + ":" + userID

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now), Member: strconv.FormatInt(now, 10)})
	countCmd := pipe.ZCard(ctx, rkey)
	pipe.Expire(ctx, rkey, r.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limiter pipeline for %q: %w", userID, err)
	}

	if countCmd.Val() > int64(r.limit) {
		return &domain.RateLimitExceededError{UserID: userID, Limit: r.limit}
	}
	return nil
}
