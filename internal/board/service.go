// Package board sequences every task mutation on the shared board:
// validate, assign or version-check, persist, record activity, broadcast.
//
// Read paths are thin pass-throughs to the repositories.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-task-board/internal/broadcast"
	"github.com/ramiqadoumi/go-task-board/internal/domain"
	"github.com/ramiqadoumi/go-task-board/internal/postgres"
	redisstore "github.com/ramiqadoumi/go-task-board/internal/redis"
	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
)

// Publisher receives change notifications after a mutation is persisted.
// Implementations must not block and must not hold on to ctx beyond its trace.
type Publisher interface {
	Publish(ctx context.Context, name, key string, payload any)
}

// Service is the entry point for every task mutation.
type Service struct {
	tasks     postgres.TaskRepository
	users     postgres.UserDirectory
	activity  postgres.ActivityLog
	assigner  *Assigner
	recorder  *Recorder
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used by the service and its recorder.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides the source of lastModified and activity timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService wires the orchestrator to its collaborators.
func NewService(
	tasks postgres.TaskRepository,
	users postgres.UserDirectory,
	activity postgres.ActivityLog,
	counter redisstore.RotationCounter,
	publisher Publisher,
	opts ...Option,
) *Service {
	s := &Service{
		tasks:     tasks,
		users:     users,
		activity:  activity,
		assigner:  NewAssigner(users, tasks, counter),
		publisher: publisher,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = NewRecorder(activity, s.logger)
	s.recorder.now = s.now
	return s
}

// ListTasks returns every task with its assignee populated.
func (s *Service) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	return s.tasks.List(ctx)
}

// RecentActivity returns up to limit activity records, newest first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]*domain.ActivityRecord, error) {
	return s.activity.Recent(ctx, limit)
}

// ListUsers returns the user directory.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

// CreateTask validates in, smart-assigns when no assignee is given, and persists
// the task at version 1.
func (s *Service) CreateTask(ctx context.Context, in domain.NewTask, actor *domain.User) (task *domain.Task, err error) {
	ctx, span := otel.Tracer("board").Start(ctx, "board.create_task")
	defer s.finish(span, "create", time.Now(), &err)

	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = domain.StatusTodo
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if err := validateEnums(&in.Status, &in.Priority); err != nil {
		return nil, err
	}

	exists, err := s.tasks.TitleExists(ctx, in.Title)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &domain.ValidationError{Field: "title", Reason: "Task title must be unique"}
	}

	task = &domain.Task{
		Title:        in.Title,
		Description:  in.Description,
		Status:       in.Status,
		Priority:     in.Priority,
		Version:      1,
		LastModified: s.now(),
	}

	if in.AssignedTo == "" {
		user, err := s.assigner.Assign(ctx)
		if err != nil {
			return nil, err
		}
		task.AssignedTo = &user
	} else {
		user, err := s.lookupAssignee(ctx, in.AssignedTo)
		if err != nil {
			return nil, err
		}
		task.AssignedTo = user
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("task.id", task.ID), attribute.String("task.assignee", task.AssigneeID()))

	rec := s.recorder.Created(ctx, task, actor)
	s.notify(ctx, broadcast.TaskCreated, task, rec)

	s.logger.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("assignee", task.AssigneeID()),
		slog.String("actor", actorID(actor)),
	)
	return task, nil
}

// UpdateTask applies patch when patch.Version is not older than the stored version.
// A stale version yields *domain.ConflictError carrying the current stored task,
// and takes precedence over validation so the client always gets the server copy.
func (s *Service) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch, actor *domain.User) (task *domain.Task, err error) {
	ctx, span := otel.Tracer("board").Start(ctx, "board.update_task")
	defer s.finish(span, "update", time.Now(), &err)
	span.SetAttributes(attribute.String("task.id", id), attribute.Int("task.client_version", patch.Version))

	current, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := CheckVersion(current, patch.Version); err != nil {
		return nil, err
	}

	if patch.Title != nil {
		if err := validateTitle(*patch.Title); err != nil {
			return nil, err
		}
	}
	if err := validateEnums(patch.Status, patch.Priority); err != nil {
		return nil, err
	}

	next := patch.Apply(current)
	if patch.AssignedTo.Set && patch.AssignedTo.ID != "" && patch.AssignedTo.ID != current.AssigneeID() {
		user, err := s.lookupAssignee(ctx, patch.AssignedTo.ID)
		if err != nil {
			return nil, err
		}
		next.AssignedTo = user
	}

	if err := s.tasks.UpdateIfVersion(ctx, next, current.Version); err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			conflict.ClientVersion = patch.Version
		}
		return nil, err
	}

	rec := s.recorder.Updated(ctx, current, next, actor)
	s.notify(ctx, broadcast.TaskUpdated, next, rec)

	s.logger.Info("task updated",
		slog.String("task_id", next.ID),
		slog.Int("version", next.Version),
		slog.String("actor", actorID(actor)),
	)
	return next, nil
}

// DeleteTask removes the task. Its activity records are kept.
func (s *Service) DeleteTask(ctx context.Context, id string, actor *domain.User) (task *domain.Task, err error) {
	ctx, span := otel.Tracer("board").Start(ctx, "board.delete_task")
	defer s.finish(span, "delete", time.Now(), &err)
	span.SetAttributes(attribute.String("task.id", id))

	task, err = s.tasks.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := s.recorder.Deleted(ctx, task, actor)
	s.notify(ctx, broadcast.TaskDeleted, task, rec)

	s.logger.Info("task deleted", slog.String("task_id", id), slog.String("actor", actorID(actor)))
	return task, nil
}

// notify emits the task event and, when recording succeeded, the activity event.
func (s *Service) notify(ctx context.Context, event string, task *domain.Task, rec *domain.ActivityRecord) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, event, task.ID, task)
	if rec != nil {
		s.publisher.Publish(ctx, broadcast.ActivityLog, task.ID, rec)
	}
}

func (s *Service) lookupAssignee(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		var notFound *domain.UserNotFoundError
		if errors.As(err, &notFound) {
			return nil, &domain.ValidationError{Field: "assignedTo", Reason: "Assignee is not a known user"}
		}
		return nil, fmt.Errorf("lookup assignee: %w", err)
	}
	return user, nil
}

// finish closes the span and records the outcome of a mutation.
func (s *Service) finish(span trace.Span, op string, start time.Time, errp *error) {
	outcome := outcomeOf(*errp)
	if outcome == "failed" {
		span.RecordError(*errp)
		span.SetStatus(codes.Error, op+" failed")
		s.logger.Error("task mutation failed", slog.String("op", op), slog.String("error", (*errp).Error()))
	}
	span.SetAttributes(attribute.String("board.outcome", outcome))
	span.End()

	telemetry.MutationsTotal.WithLabelValues(op, outcome).Inc()
	telemetry.MutationDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func outcomeOf(err error) string {
	var (
		conflict   *domain.ConflictError
		invalid    *domain.ValidationError
		notFound   *domain.TaskNotFoundError
		impossible *domain.AssignmentImpossibleError
	)
	switch {
	case err == nil:
		return "accepted"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &invalid), errors.As(err, &notFound), errors.As(err, &impossible):
		return "rejected"
	default:
		return "failed"
	}
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "Task title is required"}
	}
	if domain.IsReservedTitle(title) {
		return &domain.ValidationError{Field: "title", Reason: "Task title cannot be a column name"}
	}
	return nil
}

func validateEnums(status *domain.Status, priority *domain.Priority) error {
	if status != nil && !status.Valid() {
		return &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("Unknown status %q", *status)}
	}
	if priority != nil && !priority.Valid() {
		return &domain.ValidationError{Field: "priority", Reason: fmt.Sprintf("Unknown priority %q", *priority)}
	}
	return nil
}

func actorID(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
