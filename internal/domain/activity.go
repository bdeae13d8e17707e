package domain

import "time"

// ActivityType names the kind of mutation an activity record describes.
type ActivityType string

const (
	ActivityCreated ActivityType = "created"
	ActivityUpdated ActivityType = "updated"
	ActivityDeleted ActivityType = "deleted"
)

// EmptyValue stands in for an absent field in a change entry.
const EmptyValue = "—"

// Change is the before/after pair for one field of an updated task.
type Change struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// TaskRef is the weak reference an activity keeps to its task.
// Title is a snapshot taken when the activity was written, so it survives deletion.
type TaskRef struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	AssignedTo *User  `json:"assignedTo"`
}

// ActivityRecord is an immutable audit entry for one accepted mutation.
type ActivityRecord struct {
	ID        string            `json:"id"`
	Seq       int64             `json:"-"`
	Type      ActivityType      `json:"type"`
	Task      TaskRef           `json:"task"`
	User      *User             `json:"user"`
	Changes   map[string]Change `json:"changes,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
