package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
)

// Limiter admits or rejects one request for a user.
type Limiter interface {
	Check(ctx context.Context, userID string) error
}

// RateLimit caps mutating requests per authenticated user. Reads pass through.
// Limiter backend errors fail open.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFrom(r.Context())
			if limiter == nil || user == nil || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			err := limiter.Check(r.Context(), user.ID)
			var exceeded *domain.RateLimitExceededError
			switch {
			case errors.As(err, &exceeded):
				telemetry.RateLimitedTotal.Inc()
				writeMsg(w, http.StatusTooManyRequests, "Too many requests")
				return
			case err != nil:
				logger.Warn("rate limiter unavailable", slog.String("user_id", user.ID), slog.String("error", err.Error()))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
