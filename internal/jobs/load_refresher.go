// Package jobs runs periodic background work for the board service.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
)

// DefaultLoadRefresh is the schedule used when none is configured.
const DefaultLoadRefresh = "@every 30s"

// LoadSource reports open tasks per assignee.
type LoadSource interface {
	OpenLoadByUser(ctx context.Context) (map[string]int, error)
}

// UserLister returns the user directory.
type UserLister interface {
	List(ctx context.Context) ([]domain.User, error)
}

// RotationSource reads the smart-assign rotation counter without advancing it.
type RotationSource interface {
	Peek(ctx context.Context) (int64, error)
}

// LoadRefresher publishes each user's open-task count to the
// taskboard_assign_open_load gauge on a cron schedule, and the rotation
// counter to taskboard_assign_rotation_index.
type LoadRefresher struct {
	tasks    LoadSource
	users    UserLister
	rotation RotationSource
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time
}

// NewLoadRefresher parses spec (standard cron or "@every <duration>").
// rotation may be nil.
func NewLoadRefresher(tasks LoadSource, users UserLister, rotation RotationSource, spec string, logger *slog.Logger) (*LoadRefresher, error) {
	if spec == "" {
		spec = DefaultLoadRefresh
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse load refresh schedule %q: %w", spec, err)
	}
	return &LoadRefresher{
		tasks:    tasks,
		users:    users,
		rotation: rotation,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run refreshes once immediately, then on every scheduled tick until ctx is cancelled.
func (r *LoadRefresher) Run(ctx context.Context) {
	r.tick(ctx)

	for {
		next := r.schedule.Next(r.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.tick(ctx)
		}
	}
}

func (r *LoadRefresher) tick(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("open load refresh failed", slog.String("error", err.Error()))
	}
}

// Refresh sets the gauge for every known user, reporting zero for users with no open tasks.
func (r *LoadRefresher) Refresh(ctx context.Context) error {
	users, err := r.users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	load, err := r.tasks.OpenLoadByUser(ctx)
	if err != nil {
		return fmt.Errorf("open load: %w", err)
	}

	telemetry.OpenLoad.Reset()
	for _, u := range users {
		telemetry.OpenLoad.WithLabelValues(u.Username).Set(float64(load[u.ID]))
	}

	if r.rotation != nil {
		idx, err := r.rotation.Peek(ctx)
		if err != nil {
			return fmt.Errorf("rotation counter: %w", err)
		}
		telemetry.RotationIndex.Set(float64(idx))
	}
	r.logger.Debug("open load refreshed", slog.Int("users", len(users)))
	return nil
}
