package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
	"github.com/ramiqadoumi/go-task-board/services/board-api/middleware"
)

// DefaultMaxBody caps JSON request bodies.
const DefaultMaxBody = 1 << 20

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	REST           *REST
	Stream         http.Handler
	Auth           *middleware.Authenticator
	Limiter        middleware.Limiter
	AllowedOrigins []string
	Ready          map[string]telemetry.Check
	Logger         *slog.Logger
}

// NewRouter assembles the board API: public health probes, then authenticated
// task, activity, user and websocket routes.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", telemetry.Healthz)
	r.Get("/readyz", telemetry.ReadinessHandler(d.Ready))

	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Middleware)

		r.Get("/ws", d.Stream.ServeHTTP)
		r.Get("/auth/users", d.REST.ListUsers)
		r.Get("/activities", d.REST.RecentActivity)

		r.Route("/tasks", func(r chi.Router) {
			r.Use(middleware.RateLimit(d.Limiter, d.Logger))
			r.Use(middleware.MaxBodySize(DefaultMaxBody))
			r.Get("/", d.REST.ListTasks)
			r.Post("/", d.REST.CreateTask)
			r.Put("/{id}", d.REST.UpdateTask)
			r.Delete("/{id}", d.REST.DeleteTask)
		})
	})
	return r
}
