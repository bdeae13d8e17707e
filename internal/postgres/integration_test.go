//go:build integration

package postgres_test

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
	"github.com/ramiqadoumi/go-task-board/internal/postgres"
	"github.com/ramiqadoumi/go-task-board/internal/postgres/migrations"
)

var testPostgresDSN string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	pgCtr, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("taskboard"),
		tcPostgres.WithUsername("taskboard"),
		tcPostgres.WithPassword("taskboard"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	defer pgCtr.Terminate(ctx) //nolint:errcheck

	testPostgresDSN, err = pgCtr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("postgres connection string: %v", err)
	}

	pool, err := postgres.NewPool(ctx, testPostgresDSN)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	for _, f := range migrations.Files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}
	}
	pool.Close()

	return m.Run()
}

type stores struct {
	tasks    postgres.TaskRepository
	users    postgres.UserDirectory
	activity postgres.ActivityLog
}

// newStores connects to the test database and truncates every table on cleanup.
func newStores(t *testing.T) stores {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE activities, tasks, users CASCADE") //nolint:errcheck
		pool.Close()
	})
	return stores{
		tasks:    postgres.NewRepository(pool),
		users:    postgres.NewUserDirectory(pool),
		activity: postgres.NewActivityLog(pool),
	}
}

func newTask(title string, assignee *domain.User) *domain.Task {
	return &domain.Task{
		Title:        title,
		Status:       domain.StatusTodo,
		Priority:     domain.PriorityMedium,
		AssignedTo:   assignee,
		Version:      1,
		LastModified: time.Now().UTC(),
	}
}

func TestUsers_ListOrderedByUsername(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := s.users.Add(ctx, name)
		require.NoError(t, err)
	}
	users, err := s.users.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, []string{users[0].Username, users[1].Username, users[2].Username})

	_, err = s.users.GetByID(ctx, "missing")
	var notFound *domain.UserNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestTasks_CreatePopulatesAssignee(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	alice, err := s.users.Add(ctx, "alice")
	require.NoError(t, err)

	task := newTask("Design API", &domain.User{ID: alice.ID})
	require.NoError(t, s.tasks.Create(ctx, task))
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "alice", task.AssignedTo.Username)

	got, err := s.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Design API", got.Title)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, "alice", got.AssignedTo.Username)

	exists, err := s.tasks.TitleExists(ctx, "Design API")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTasks_CheckConstraintsRejectUnknownStatus(t *testing.T) {
	s := newStores(t)
	task := newTask("bad", nil)
	task.Status = "Blocked"
	assert.Error(t, s.tasks.Create(context.Background(), task))
}

func TestTasks_UpdateIfVersion(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	task := newTask("Design API", nil)
	require.NoError(t, s.tasks.Create(ctx, task))

	first := task.Clone()
	first.Title = "first"
	require.NoError(t, s.tasks.UpdateIfVersion(ctx, first, 1))
	assert.Equal(t, 2, first.Version)

	second := task.Clone()
	second.Title = "second"
	err := s.tasks.UpdateIfVersion(ctx, second, 1)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.Server.Version)
	assert.Equal(t, "first", conflict.Server.Title)

	ghost := newTask("ghost", nil)
	ghost.ID = "00000000-0000-0000-0000-000000000000"
	var notFound *domain.TaskNotFoundError
	assert.ErrorAs(t, s.tasks.UpdateIfVersion(ctx, ghost, 1), &notFound)
}

func TestTasks_UpdateIfVersion_ConcurrentWritersOneWins(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	task := newTask("race", nil)
	require.NoError(t, s.tasks.Create(ctx, task))

	const writers = 10
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := task.Clone()
			next.Description = "writer"
			errs[i] = s.tasks.UpdateIfVersion(ctx, next, 1)
		}()
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)

	got, err := s.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestTasks_OpenLoadByUser(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	alice, _ := s.users.Add(ctx, "alice")
	bob, _ := s.users.Add(ctx, "bob")

	for i, status := range []domain.Status{domain.StatusTodo, domain.StatusInProgress, domain.StatusDone} {
		task := newTask(string(rune('a'+i)), &domain.User{ID: alice.ID})
		task.Status = status
		require.NoError(t, s.tasks.Create(ctx, task))
	}
	require.NoError(t, s.tasks.Create(ctx, newTask("unassigned", nil)))

	load, err := s.tasks.OpenLoadByUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{alice.ID: 2}, load)
	assert.Zero(t, load[bob.ID])
}

func TestTasks_DeleteKeepsActivityWithTitleSnapshot(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	alice, _ := s.users.Add(ctx, "alice")

	task := newTask("temporary", &domain.User{ID: alice.ID})
	require.NoError(t, s.tasks.Create(ctx, task))

	created := &domain.ActivityRecord{
		Type: domain.ActivityCreated,
		Task: domain.TaskRef{ID: task.ID, Title: task.Title},
		User: alice,
	}
	require.NoError(t, s.activity.Append(ctx, created))

	deleted, err := s.tasks.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", deleted.AssignedTo.Username)

	require.NoError(t, s.activity.Append(ctx, &domain.ActivityRecord{
		Type: domain.ActivityDeleted,
		Task: domain.TaskRef{ID: task.ID, Title: task.Title},
	}))

	_, err = s.tasks.Delete(ctx, task.ID)
	var notFound *domain.TaskNotFoundError
	assert.ErrorAs(t, err, &notFound)

	recent, err := s.activity.Recent(ctx, postgres.DefaultActivityLimit)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.ActivityDeleted, recent[0].Type)
	assert.Nil(t, recent[0].User)
	assert.Equal(t, "temporary", recent[1].Task.Title, "title survives the task")
	assert.Nil(t, recent[1].Task.AssignedTo, "the task is gone so no live assignee")
	assert.Equal(t, "alice", recent[1].User.Username)
}

func TestTasks_DeleteReturnsRowAsDeleted(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()
	alice, _ := s.users.Add(ctx, "alice")
	bob, _ := s.users.Add(ctx, "bob")

	task := newTask("draft", &domain.User{ID: alice.ID})
	require.NoError(t, s.tasks.Create(ctx, task))

	edited := task.Clone()
	edited.Title = "final"
	edited.AssignedTo = &domain.User{ID: bob.ID}
	require.NoError(t, s.tasks.UpdateIfVersion(ctx, edited, 1))

	deleted, err := s.tasks.Delete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", deleted.Title)
	assert.Equal(t, 2, deleted.Version)
	require.NotNil(t, deleted.AssignedTo)
	assert.Equal(t, "bob", deleted.AssignedTo.Username)

	_, err = s.tasks.Delete(ctx, task.ID)
	var notFound *domain.TaskNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, task.ID, notFound.TaskID)
}

func TestActivity_RecentNewestFirstAndLimited(t *testing.T) {
	s := newStores(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		rec := &domain.ActivityRecord{
			Type: domain.ActivityUpdated,
			Task: domain.TaskRef{ID: "t", Title: "t"},
			Changes: map[string]domain.Change{
				"status": {Before: "Todo", After: "Done"},
			},
		}
		require.NoError(t, s.activity.Append(ctx, rec))
	}

	recent, err := s.activity.Recent(ctx, postgres.DefaultActivityLimit)
	require.NoError(t, err)
	require.Len(t, recent, 50)
	for i := 1; i < len(recent); i++ {
		assert.Greater(t, recent[i-1].Seq, recent[i].Seq)
	}
	assert.Equal(t, domain.Change{Before: "Todo", After: "Done"}, recent[0].Changes["status"])

	got, err := s.activity.GetByID(ctx, recent[0].ID)
	require.NoError(t, err)
	assert.Equal(t, recent[0].Seq, got.Seq)
}
