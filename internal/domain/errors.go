package domain

import "fmt"

// TaskNotFoundError is returned when a task ID does not exist.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// UserNotFoundError is returned when a user ID is not in the directory.
type UserNotFoundError struct {
	UserID string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}

// ValidationError is returned when a create or update payload is rejected before persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ConflictError is returned when the client's version is older than the stored one.
// Server holds the current stored task so the caller can reconcile.
type ConflictError struct {
	TaskID        string
	ClientVersion int
	Server        *Task
}

func (e *ConflictError) Error() string {
	stored := 0
	if e.Server != nil {
		stored = e.Server.Version
	}
	return fmt.Sprintf("version conflict on task %s: client has %d, server has %d", e.TaskID, e.ClientVersion, stored)
}

// AssignmentImpossibleError is returned when smart assignment has no users to pick from.
type AssignmentImpossibleError struct{}

func (e *AssignmentImpossibleError) Error() string {
	return "No users to assign"
}

// RateLimitExceededError is returned when a user exceeds the mutation rate limit.
type RateLimitExceededError struct {
	UserID string
	Limit  int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for user %q: limit is %d", e.UserID, e.Limit)
}
