package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
)

// DefaultActivityLimit is how many records the activity feed surfaces.
const DefaultActivityLimit = 50

// ActivityLog is the append-only store of activity records.
type ActivityLog interface {
	// Append stores rec and fills in its ID, Seq and Timestamp.
	Append(ctx context.Context, rec *domain.ActivityRecord) error
	// Recent returns up to limit records, newest accepted first, with task and actor populated.
	Recent(ctx context.Context, limit int) ([]*domain.ActivityRecord, error)
	GetByID(ctx context.Context, id string) (*domain.ActivityRecord, error)
}

type activityLog struct {
	pool *pgxpool.Pool
}

// NewActivityLog wraps a pgxpool with the ActivityLog interface.
func NewActivityLog(pool *pgxpool.Pool) ActivityLog {
	return &activityLog{pool: pool}
}

const selectActivity = `
	SELECT a.seq, a.id, a.type, a.task_id, COALESCE(t.title, a.task_title),
	       t.assigned_to, au.username, a.user_id, u.username, a.changes, a.created_at
	FROM activities a
	LEFT JOIN tasks t  ON t.id = a.task_id
	LEFT JOIN users au ON au.id = t.assigned_to
	LEFT JOIN users u  ON u.id = a.user_id
`

func (l *activityLog) Append(ctx context.Context, rec *domain.ActivityRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	var changes []byte
	if len(rec.Changes) > 0 {
		var err error
		if changes, err = json.Marshal(rec.Changes); err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}
	}

	var userID *string
	if rec.User != nil {
		userID = &rec.User.ID
	}

	err := l.pool.QueryRow(ctx, `
		INSERT INTO activities (id, type, task_id, task_title, user_id, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`,
		rec.ID, string(rec.Type), rec.Task.ID, rec.Task.Title, userID, changes, rec.Timestamp,
	).Scan(&rec.Seq)
	if err != nil {
		return fmt.Errorf("append activity for task %s: %w", rec.Task.ID, err)
	}
	return nil
}

func (l *activityLog) Recent(ctx context.Context, limit int) ([]*domain.ActivityRecord, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	rows, err := l.pool.Query(ctx, selectActivity+` ORDER BY a.seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activities: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.ActivityRecord, 0, limit)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (l *activityLog) GetByID(ctx context.Context, id string) (*domain.ActivityRecord, error) {
	rec, err := scanActivity(l.pool.QueryRow(ctx, selectActivity+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get activity %s: %w", id, err)
	}
	return rec, nil
}

func scanActivity(row interface {
	Scan(...any) error
}) (*domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	var typ string
	var assigneeID, assigneeName, userID, username *string
	var changes []byte
	err := row.Scan(
		&rec.Seq, &rec.ID, &typ, &rec.Task.ID, &rec.Task.Title,
		&assigneeID, &assigneeName, &userID, &username, &changes, &rec.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("scan activity: %w", err)
	}
	rec.Type = domain.ActivityType(typ)
	if assigneeID != nil {
		rec.Task.AssignedTo = &domain.User{ID: *assigneeID, Username: deref(assigneeName)}
	}
	if userID != nil {
		rec.User = &domain.User{ID: *userID, Username: deref(username)}
	}
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &rec.Changes); err != nil {
			return nil, fmt.Errorf("unmarshal changes: %w", err)
		}
	}
	return &rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
