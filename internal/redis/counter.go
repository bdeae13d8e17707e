package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SmartAssignKey names the process-wide rotation counter used by smart assignment.
const SmartAssignKey = "smartAssignIndex"

func counterKey(name string) string { return "assign:counter:" + name }

// RotationCounter hands out a monotonically increasing rotation offset.
type RotationCounter interface {
	// Next returns the current value and advances the counter by one in a single step.
	// A missing counter starts at 0.
	Next(ctx context.Context) (int64, error)
	// Peek returns the current value without advancing it.
	Peek(ctx context.Context) (int64, error)
}

type counter struct {
	client *redis.Client
	key    string
}

// NewRotationCounter returns a Redis-backed counter stored under name.
// INCR is atomic on the server, so concurrent callers never observe the same value
// and the counter never goes backward.
func NewRotationCounter(client *redis.Client, name string) RotationCounter {
	return &counter{client: client, key: counterKey(name)}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (c *counter) Next(ctx context.Context) (int64, error) {
	n, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", c.key, err)
	}
	return n - 1, nil
}

func (c *counter) Peek(ctx context.Context) (int64, error) {
	n, err := c.client.Get(ctx, c.key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	return n, nil
}
