package board

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
	"github.com/ramiqadoumi/go-task-board/internal/postgres"
	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
)

// trackedField is one row of the update diff table.
type trackedField struct {
	name    string
	extract func(*domain.Task) string
}

// trackedFields are the task fields an "updated" record reports on, in output order.
var trackedFields = []trackedField{
	{"title", func(t *domain.Task) string { return t.Title }},
	{"description", func(t *domain.Task) string { return t.Description }},
	{"priority", func(t *domain.Task) string { return string(t.Priority) }},
	{"status", func(t *domain.Task) string { return string(t.Status) }},
	{"assignedTo", func(t *domain.Task) string { return t.AssigneeID() }},
}

// Diff returns the tracked fields whose string form differs between before and after.
// Empty values are rendered as domain.EmptyValue so both sides are always present.
func Diff(before, after *domain.Task) map[string]domain.Change {
	changes := make(map[string]domain.Change)
	for _, f := range trackedFields {
		old, cur := f.extract(before), f.extract(after)
		if old == cur {
			continue
		}
		changes[f.name] = domain.Change{Before: placeholder(old), After: placeholder(cur)}
	}
	return changes
}

func placeholder(v string) string {
	if v == "" {
		return domain.EmptyValue
	}
	return v
}

// Recorder derives activity records from accepted mutations and appends them to the log.
// Recording is best-effort: failures are logged and counted, and nil is returned.
type Recorder struct {
	log    postgres.ActivityLog
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder writing to log.
func NewRecorder(log postgres.ActivityLog, logger *slog.Logger) *Recorder {
	return &Recorder{
		log:    log,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Created records a create. actor may be nil.
func (r *Recorder) Created(ctx context.Context, task *domain.Task, actor *domain.User) *domain.ActivityRecord {
	return r.record(ctx, domain.ActivityCreated, task, actor, nil)
}

// Updated records an update with the field changes between before and after.
func (r *Recorder) Updated(ctx context.Context, before, after *domain.Task, actor *domain.User) *domain.ActivityRecord {
	return r.record(ctx, domain.ActivityUpdated, after, actor, Diff(before, after))
}

// Deleted records a delete.
func (r *Recorder) Deleted(ctx context.Context, task *domain.Task, actor *domain.User) *domain.ActivityRecord {
	return r.record(ctx, domain.ActivityDeleted, task, actor, nil)
}

func (r *Recorder) record(
	ctx context.Context,
	typ domain.ActivityType,
	task *domain.Task,
	actor *domain.User,
	changes map[string]domain.Change,
) *domain.ActivityRecord {
	log := r.logger.With(slog.String("task_id", task.ID), slog.String("activity", string(typ)))

	if actor == nil {
		// Accepted without an actor; flagged so the gap shows up in logs and metrics.
		telemetry.ActivityMissingActor.WithLabelValues(string(typ)).Inc()
		log.Warn("recording activity without an actor")
	}

	rec := &domain.ActivityRecord{
		Type: typ,
		Task: domain.TaskRef{
			ID:         task.ID,
			Title:      task.Title,
			AssignedTo: task.AssignedTo,
		},
		User:      actor,
		Changes:   changes,
		Timestamp: r.now(),
	}
	if err := r.log.Append(ctx, rec); err != nil {
		telemetry.ActivityFailures.WithLabelValues(string(typ)).Inc()
		log.Error("failed to record activity", slog.String("error", err.Error()))
		return nil
	}

	telemetry.ActivityRecorded.WithLabelValues(string(typ)).Inc()

	// Re-read so listeners get the record as the feed will show it.
	stored, err := r.log.GetByID(ctx, rec.ID)
	if err != nil {
		log.Warn("re-read activity failed, broadcasting appended copy", slog.String("error", err.Error()))
		return rec
	}
	return stored
}
