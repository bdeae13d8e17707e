package board

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
	"github.com/ramiqadoumi/go-task-board/internal/postgres"
	redisstore "github.com/ramiqadoumi/go-task-board/internal/redis"
	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
)

// PickAssignee returns the user for the next smart assignment.
//
// The candidates are the users tied at the minimum open load, kept in the order of
// users; rotation selects among them modulo the tie size. Users missing from load
// have no open tasks.
func PickAssignee(users []domain.User, load map[string]int, rotation int64) (domain.User, int, error) {
	if len(users) == 0 {
		return domain.User{}, 0, &domain.AssignmentImpossibleError{}
	}

	minLoad := load[users[0].ID]
	for _, u := range users[1:] {
		if n := load[u.ID]; n < minLoad {
			minLoad = n
		}
	}

	leastLoaded := make([]domain.User, 0, len(users))
	for _, u := range users {
		if load[u.ID] == minLoad {
			leastLoaded = append(leastLoaded, u)
		}
	}

	idx := rotation % int64(len(leastLoaded))
	if idx < 0 {
		idx += int64(len(leastLoaded))
	}
	return leastLoaded[idx], len(leastLoaded), nil
}

// Assigner runs smart assignment against the live directory and task store.
type Assigner struct {
	users   postgres.UserDirectory
	tasks   postgres.TaskRepository
	counter redisstore.RotationCounter
}

// NewAssigner creates an Assigner.
func NewAssigner(users postgres.UserDirectory, tasks postgres.TaskRepository, counter redisstore.RotationCounter) *Assigner {
	return &Assigner{users: users, tasks: tasks, counter: counter}
}

// Assign picks the next assignee and advances the rotation counter once.
// The counter is only touched when there is at least one user to pick from.
func (a *Assigner) Assign(ctx context.Context) (domain.User, error) {
	users, err := a.users.List(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("load users: %w", err)
	}
	if len(users) == 0 {
		return domain.User{}, &domain.AssignmentImpossibleError{}
	}

	load, err := a.tasks.OpenLoadByUser(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("load open tasks: %w", err)
	}

	rotation, err := a.counter.Next(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("rotation counter: %w", err)
	}

	user, tie, err := PickAssignee(users, load, rotation)
	if err != nil {
		return domain.User{}, err
	}
	telemetry.SmartAssignments.WithLabelValues(strconv.Itoa(tie)).Inc()
	return user, nil
}
