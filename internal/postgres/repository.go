package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
)

// TaskRepository abstracts all database access for tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context) ([]*domain.Task, error)
	TitleExists(ctx context.Context, title string) (bool, error)
	// UpdateIfVersion writes task only if the stored version still equals expected.
	// On success task.Version and task.LastModified hold the new stored values.
	UpdateIfVersion(ctx context.Context, task *domain.Task, expected int) error
	Delete(ctx context.Context, id string) (*domain.Task, error)
	OpenLoadByUser(ctx context.Context) (map[string]int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the TaskRepository interface.
func NewRepository(pool *pgxpool.Pool) TaskRepository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

const selectTask = `
	SELECT t.id, t.title, t.description, t.status, t.priority,
	       t.assigned_to, u.username, t.version, t.last_modified
	FROM tasks t
	LEFT JOIN users u ON u.id = t.assigned_to
`

func (r *repository) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks
			(id, title, description, status, priority, assigned_to, version, last_modified)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		task.ID, task.Title, task.Description, string(task.Status), string(task.Priority),
		nullableID(task.AssigneeID()), task.Version, task.LastModified,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return r.resolveAssignee(ctx, task)
}

func (r *repository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, selectTask+` WHERE t.id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		var notFound *domain.TaskNotFoundError
		if errors.As(err, &notFound) {
			notFound.TaskID = id
		}
		return nil, err
	}
	return task, nil
}

func (r *repository) List(ctx context.Context) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx, selectTask+` ORDER BY t.created_at, t.id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *repository) TitleExists(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE title = $1)`, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check title: %w", err)
	}
	return exists, nil
}

// UpdateIfVersion is the conditional write behind optimistic concurrency: the row is
// only touched when its version still matches, and the increment happens in the same
// statement. When no row matches, the current row decides between not-found and conflict.
func (r *repository) UpdateIfVersion(ctx context.Context, task *domain.Task, expected int) error {
	now := time.Now().UTC()
	var newVersion int
	var lastModified time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, priority = $4, assigned_to = $5,
		    version = version + 1, last_modified = $6
		WHERE id = $7 AND version = $8
		RETURNING version, last_modified
	`,
		task.Title, task.Description, string(task.Status), string(task.Priority),
		nullableID(task.AssigneeID()), now, task.ID, expected,
	).Scan(&newVersion, &lastModified)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update task %s: %w", task.ID, err)
		}
		current, getErr := r.GetByID(ctx, task.ID)
		if getErr != nil {
			return getErr
		}
		return &domain.ConflictError{TaskID: task.ID, ClientVersion: expected, Server: current}
	}

	task.Version = newVersion
	task.LastModified = lastModified
	return r.resolveAssignee(ctx, task)
}

// Delete removes the row and returns it as it was at deletion time, assignee
// included, in a single statement.
func (r *repository) Delete(ctx context.Context, id string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `
		WITH gone AS (
			DELETE FROM tasks WHERE id = $1
			RETURNING id, title, description, status, priority, assigned_to, version, last_modified
		)
		SELECT t.id, t.title, t.description, t.status, t.priority,
		       t.assigned_to, u.username, t.version, t.last_modified
		FROM gone t
		LEFT JOIN users u ON u.id = t.assigned_to
	`, id)
	task, err := scanTask(row)
	if err != nil {
		var notFound *domain.TaskNotFoundError
		if errors.As(err, &notFound) {
			notFound.TaskID = id
			return nil, notFound
		}
		return nil, fmt.Errorf("delete task %s: %w", id, err)
	}
	return task, nil
}

// OpenLoadByUser counts not-Done tasks per assignee. Users without open tasks are absent.
func (r *repository) OpenLoadByUser(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT assigned_to, COUNT(*)
		FROM tasks
		WHERE assigned_to IS NOT NULL AND status <> $1
		GROUP BY assigned_to
	`, string(domain.StatusDone))
	if err != nil {
		return nil, fmt.Errorf("open load: %w", err)
	}
	defer rows.Close()

	load := make(map[string]int)
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("scan open load: %w", err)
		}
		load[userID] = count
	}
	return load, rows.Err()
}

// resolveAssignee fills in the assignee's username after a write.
func (r *repository) resolveAssignee(ctx context.Context, task *domain.Task) error {
	if task.AssignedTo == nil || task.AssignedTo.Username != "" {
		return nil
	}
	err := r.pool.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, task.AssignedTo.ID).
		Scan(&task.AssignedTo.Username)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("resolve assignee %s: %w", task.AssignedTo.ID, err)
	}
	return nil
}

func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// scanTask reads a task row from any pgx row type.
func scanTask(row interface {
	Scan(...any) error
}) (*domain.Task, error) {
	var task domain.Task
	var status, priority string
	var assigneeID, assigneeName *string
	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &status, &priority,
		&assigneeID, &assigneeName, &task.Version, &task.LastModified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{TaskID: "unknown"}
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Status = domain.Status(status)
	task.Priority = domain.Priority(priority)
	if assigneeID != nil {
		task.AssignedTo = &domain.User{ID: *assigneeID}
		if assigneeName != nil {
			task.AssignedTo.Username = *assigneeName
		}
	}
	return &task, nil
}
