package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger logs every HTTP request with method, path, status, duration and,
// when authenticated, the acting user.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			// The auth middleware runs after this one and fills the holder in place.
			holder := &userHolder{}
			next.ServeHTTP(ww, r.WithContext(withHolder(r.Context(), holder)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if holder.user != nil {
				attrs = append(attrs, slog.String("user_id", holder.user.ID))
			}
			logger.Info("request", attrs...)
		})
	}
}
