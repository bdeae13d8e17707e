package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the workflow column a task sits in.
type Status string

const (
	StatusTodo       Status = "Todo"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

// Statuses lists every workflow status in board order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is one of the known workflow statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsOpen returns true while the task still counts toward its assignee's load.
func (s Status) IsOpen() bool {
	return s != StatusDone
}

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// IsReservedTitle reports whether title collides with a column name once trimmed.
// The comparison is case-sensitive.
func IsReservedTitle(title string) bool {
	return Status(strings.TrimSpace(title)).Valid()
}

// User is a member of the board as seen by the user directory.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Task is a card on the shared board.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	Priority     Priority  `json:"priority"`
	AssignedTo   *User     `json:"assignedTo"`
	Version      int       `json:"version"`
	LastModified time.Time `json:"lastModified"`
}

// AssigneeID returns the assigned user's id, or "" when unassigned.
func (t *Task) AssigneeID() string {
	if t.AssignedTo == nil {
		return ""
	}
	return t.AssignedTo.ID
}

// Clone returns a deep copy so callers can diff before/after safely.
func (t *Task) Clone() *Task {
	c := *t
	if t.AssignedTo != nil {
		u := *t.AssignedTo
		c.AssignedTo = &u
	}
	return &c
}

// NewTask is the input for creating a task. An empty AssignedTo triggers smart assignment.
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	AssignedTo  string   `json:"assignedTo,omitempty"`
}

// TaskPatch carries the fields a client sent on update plus the version it last saw.
// Nil pointers mean "not supplied"; supplied fields overwrite the stored value verbatim.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	AssignedTo  NullableID `json:"assignedTo"`
	Version     int        `json:"version"`
}

// Apply writes the supplied fields of p onto a copy of t.
// The assignee username is left empty for a newly set id; the store resolves it.
func (p TaskPatch) Apply(t *Task) *Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.AssignedTo.Set {
		switch {
		case p.AssignedTo.ID == "":
			out.AssignedTo = nil
		case out.AssignedTo == nil || out.AssignedTo.ID != p.AssignedTo.ID:
			out.AssignedTo = &User{ID: p.AssignedTo.ID}
		}
	}
	return out
}

// NullableID distinguishes an absent JSON key from an explicit null.
type NullableID struct {
	Set bool
	ID  string
}

func (n *NullableID) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.ID = ""
		return nil
	}
	return json.Unmarshal(data, &n.ID)
}

func (n NullableID) MarshalJSON() ([]byte, error) {
	if n.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(n.ID)
}
