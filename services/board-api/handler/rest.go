package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
	"github.com/ramiqadoumi/go-task-board/internal/postgres"
	"github.com/ramiqadoumi/go-task-board/services/board-api/middleware"
)

// Board is the task board as seen by the HTTP layer.
type Board interface {
	ListTasks(ctx context.Context) ([]*domain.Task, error)
	CreateTask(ctx context.Context, in domain.NewTask, actor *domain.User) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch, actor *domain.User) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string, actor *domain.User) (*domain.Task, error)
	RecentActivity(ctx context.Context, limit int) ([]*domain.ActivityRecord, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// REST handles the board's HTTP endpoints.
type REST struct {
	board  Board
	logger *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(board Board, logger *slog.Logger) *REST {
	return &REST{board: board, logger: logger}
}

// ConflictResponse is the 409 body returned for a stale update.
type ConflictResponse struct {
	Msg        string          `json:"msg"`
	ServerTask *domain.Task    `json:"serverTask"`
	ClientTask json.RawMessage `json:"clientTask"`
}

// ListTasks handles GET /tasks.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.board.ListTasks(r.Context())
	if err != nil {
		h.fail(w, r, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// CreateTask handles POST /tasks.
func (h *REST) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in domain.NewTask
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badBody(w, err)
		return
	}

	task, err := h.board.CreateTask(r.Context(), in, middleware.UserFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "Failed to create task")
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTask handles PUT /tasks/{id}. The body must carry the version the client
// last saw.
func (h *REST) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		badBody(w, err)
		return
	}
	var patch domain.TaskPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		badBody(w, err)
		return
	}

	task, err := h.board.UpdateTask(r.Context(), id, patch, middleware.UserFrom(r.Context()))
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Msg:        "Version conflict",
			ServerTask: conflict.Server,
			ClientTask: body,
		})
	case err != nil:
		h.fail(w, r, err, "Failed to update task")
	default:
		writeJSON(w, http.StatusOK, task)
	}
}

// DeleteTask handles DELETE /tasks/{id}.
func (h *REST) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if _, err := h.board.DeleteTask(r.Context(), chi.URLParam(r, "id"), middleware.UserFrom(r.Context())); err != nil {
		h.fail(w, r, err, "Failed to delete task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg": "Task deleted"})
}

// RecentActivity handles GET /activities. An optional limit query parameter may
// lower the default of 50 but never raise it.
func (h *REST) RecentActivity(w http.ResponseWriter, r *http.Request) {
	limit := postgres.DefaultActivityLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, postgres.DefaultActivityLimit)
	}

	records, err := h.board.RecentActivity(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch activity log")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ListUsers handles GET /auth/users.
func (h *REST) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.board.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// fail maps domain errors to their status codes. Anything unrecognised is logged
// and answered with 500 and the generic msg.
func (h *REST) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var (
		invalid    *domain.ValidationError
		notFound   *domain.TaskNotFoundError
		impossible *domain.AssignmentImpossibleError
		limited    *domain.RateLimitExceededError
	)
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Reason)
	case errors.As(err, &impossible):
		writeError(w, http.StatusBadRequest, impossible.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "Task not found")
	case errors.As(err, &limited):
		writeError(w, http.StatusTooManyRequests, "Too many requests")
	default:
		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
		}
		h.logger.Error("request failed", attrs...)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func badBody(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request body")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"msg": msg})
}
