package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls retry behaviour.
type Config struct {
	// MaxAttempts is the total number of calls including the first attempt.
	MaxAttempts int
	// BaseDelay is the base for backoff. Wait = BaseDelay * attempt².
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	// Retryable reports whether err is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
	// OnRetry is called after a failed attempt and before the next delay.
	// attempt is 1-indexed.
	OnRetry func(attempt int, err error)
}

// Startup is the schedule used while waiting for backing services on boot.
var Startup = Config{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}

// Do calls fn until it succeeds, returns a non-retryable error, or
// cfg.MaxAttempts calls have been made. The last error is returned unwrapped.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts || (cfg.Retryable != nil && !cfg.Retryable(lastErr)) {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		delay := cfg.BaseDelay * time.Duration(attempt*attempt)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
	}
	return lastErr
}
