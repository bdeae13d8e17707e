package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
)

// UserDirectory is the set of known board users.
type UserDirectory interface {
	// List returns every user in stable directory order (username, then id).
	List(ctx context.Context) ([]domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Add(ctx context.Context, username string) (*domain.User, error)
}

type userDirectory struct {
	pool *pgxpool.Pool
}

// NewUserDirectory wraps a pgxpool with the UserDirectory interface.
func NewUserDirectory(pool *pgxpool.Pool) UserDirectory {
	return &userDirectory{pool: pool}
}

func (d *userDirectory) List(ctx context.Context) ([]domain.User, error) {
	rows, err := d.pool.Query(ctx, `SELECT id, username FROM users ORDER BY username, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *userDirectory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := d.pool.QueryRow(ctx, `SELECT id, username FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.UserNotFoundError{UserID: id}
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

func (d *userDirectory) Add(ctx context.Context, username string) (*domain.User, error) {
	u := &domain.User{ID: uuid.New().String(), Username: username}
	_, err := d.pool.Exec(ctx, `INSERT INTO users (id, username) VALUES ($1, $2)`, u.ID, u.Username)
	if err != nil {
		return nil, fmt.Errorf("add user %q: %w", username, err)
	}
	return u, nil
}
