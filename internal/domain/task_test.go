package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
)

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusTodo, "Todo"},
		{domain.StatusInProgress, "In Progress"},
		{domain.StatusDone, "Done"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("Status value = %q, want %q", tt.status, tt.want)
			}
			if !tt.status.Valid() {
				t.Errorf("Valid(%q) = false, want true", tt.status)
			}
		})
	}
}

func TestStatus_IsOpen(t *testing.T) {
	assert.True(t, domain.StatusTodo.IsOpen())
	assert.True(t, domain.StatusInProgress.IsOpen())
	assert.False(t, domain.StatusDone.IsOpen())
}

func TestIsReservedTitle(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Todo", true},
		{"  In Progress ", true},
		{"Done\n", true},
		{"done", false},
		{"In-Progress", false},
		{"Design API", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.IsReservedTitle(tt.title))
		})
	}
}

func TestTaskPatch_DecodeDistinguishesNullFromAbsent(t *testing.T) {
	var absent domain.TaskPatch
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x","version":2}`), &absent))
	assert.False(t, absent.AssignedTo.Set)
	assert.Equal(t, 2, absent.Version)

	var null domain.TaskPatch
	require.NoError(t, json.Unmarshal([]byte(`{"assignedTo":null,"version":2}`), &null))
	assert.True(t, null.AssignedTo.Set)
	assert.Empty(t, null.AssignedTo.ID)

	var set domain.TaskPatch
	require.NoError(t, json.Unmarshal([]byte(`{"assignedTo":"u-2","version":2}`), &set))
	assert.True(t, set.AssignedTo.Set)
	assert.Equal(t, "u-2", set.AssignedTo.ID)
}

func TestTaskPatch_Apply(t *testing.T) {
	base := &domain.Task{
		ID:          "t1",
		Title:       "Old",
		Description: "desc",
		Status:      domain.StatusTodo,
		Priority:    domain.PriorityLow,
		AssignedTo:  &domain.User{ID: "u1", Username: "alice"},
		Version:     3,
	}

	title := "New"
	status := domain.StatusDone
	patch := domain.TaskPatch{
		Title:      &title,
		Status:     &status,
		AssignedTo: domain.NullableID{Set: true, ID: "u2"},
	}
	out := patch.Apply(base)

	assert.Equal(t, "New", out.Title)
	assert.Equal(t, "desc", out.Description, "absent fields keep the stored value")
	assert.Equal(t, domain.StatusDone, out.Status)
	assert.Equal(t, domain.PriorityLow, out.Priority)
	require.NotNil(t, out.AssignedTo)
	assert.Equal(t, "u2", out.AssignedTo.ID)
	assert.Equal(t, "alice", base.AssignedTo.Username, "Apply must not mutate the original")
	assert.Equal(t, "Old", base.Title)
}

func TestTaskPatch_Apply_ExplicitNullUnassigns(t *testing.T) {
	base := &domain.Task{AssignedTo: &domain.User{ID: "u1"}}
	out := domain.TaskPatch{AssignedTo: domain.NullableID{Set: true}}.Apply(base)
	assert.Nil(t, out.AssignedTo)
}
