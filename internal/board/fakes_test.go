package board

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
	"github.com/ramiqadoumi/go-task-board/internal/postgres"
	redisstore "github.com/ramiqadoumi/go-task-board/internal/redis"
)

// ── mocks ────────────────────────────────────────────────────────────────────

type fakeTasks struct {
	mu      sync.Mutex
	byID    map[string]*domain.Task
	order   []string
	nextID  int
	users   *fakeUsers
	failAll error
}

func newFakeTasks(users *fakeUsers) *fakeTasks {
	return &fakeTasks{byID: make(map[string]*domain.Task), users: users}
}

func (r *fakeTasks) Create(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return r.failAll
	}
	if task.ID == "" {
		r.nextID++
		task.ID = fmt.Sprintf("task-%d", r.nextID)
	}
	r.resolve(task)
	r.byID[task.ID] = task.Clone()
	r.order = append(r.order, task.ID)
	return nil
}

func (r *fakeTasks) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return t.Clone(), nil
}

func (r *fakeTasks) List(_ context.Context) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Task, 0, len(r.order))
	for _, id := range r.order {
		if t, ok := r.byID[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (r *fakeTasks) TitleExists(_ context.Context, title string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTasks) UpdateIfVersion(_ context.Context, task *domain.Task, expected int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return r.failAll
	}
	stored, ok := r.byID[task.ID]
	if !ok {
		return &domain.TaskNotFoundError{TaskID: task.ID}
	}
	if stored.Version != expected {
		return &domain.ConflictError{TaskID: task.ID, ClientVersion: expected, Server: stored.Clone()}
	}
	task.Version = stored.Version + 1
	task.LastModified = time.Now().UTC()
	r.resolve(task)
	r.byID[task.ID] = task.Clone()
	return nil
}

func (r *fakeTasks) Delete(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	delete(r.byID, id)
	return t, nil
}

func (r *fakeTasks) OpenLoadByUser(_ context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	load := make(map[string]int)
	for _, t := range r.byID {
		if t.AssignedTo != nil && t.Status.IsOpen() {
			load[t.AssignedTo.ID]++
		}
	}
	return load, nil
}

// seed stores a task directly, bypassing the service.
func (r *fakeTasks) seed(t *domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[t.ID] = t.Clone()
	r.order = append(r.order, t.ID)
}

func (r *fakeTasks) resolve(task *domain.Task) {
	if task.AssignedTo == nil || r.users == nil {
		return
	}
	if u, ok := r.users.byID[task.AssignedTo.ID]; ok {
		task.AssignedTo.Username = u.Username
	}
}

var _ postgres.TaskRepository = (*fakeTasks)(nil)

type fakeUsers struct {
	byID map[string]domain.User
}

func newFakeUsers(users ...domain.User) *fakeUsers {
	f := &fakeUsers{byID: make(map[string]domain.User)}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (d *fakeUsers) List(_ context.Context) ([]domain.User, error) {
	out := make([]domain.User, 0, len(d.byID))
	for _, u := range d.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (d *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := d.byID[id]
	if !ok {
		return nil, &domain.UserNotFoundError{UserID: id}
	}
	return &u, nil
}

func (d *fakeUsers) Add(_ context.Context, username string) (*domain.User, error) {
	u := domain.User{ID: "u-" + username, Username: username}
	d.byID[u.ID] = u
	return &u, nil
}

var _ postgres.UserDirectory = (*fakeUsers)(nil)

type fakeActivity struct {
	mu      sync.Mutex
	records []*domain.ActivityRecord
	err     error
	readErr error
	reads   int
}

func (l *fakeActivity) Append(_ context.Context, rec *domain.ActivityRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	rec.Seq = int64(len(l.records) + 1)
	rec.ID = fmt.Sprintf("act-%d", rec.Seq)
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeActivity) Recent(_ context.Context, limit int) ([]*domain.ActivityRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.ActivityRecord, 0, limit)
	for i := len(l.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.records[i])
	}
	return out, nil
}

func (l *fakeActivity) GetByID(_ context.Context, id string) (*domain.ActivityRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.readErr != nil {
		return nil, l.readErr
	}
	for _, r := range l.records {
		if r.ID == id {
			stored := *r
			return &stored, nil
		}
	}
	return nil, fmt.Errorf("activity %s not found", id)
}

var _ postgres.ActivityLog = (*fakeActivity)(nil)

type fakeCounter struct {
	mu    sync.Mutex
	value int64
	err   error
}

func (c *fakeCounter) Next(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	v := c.value
	c.value++
	return v, nil
}

func (c *fakeCounter) Peek(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

var _ redisstore.RotationCounter = (*fakeCounter)(nil)

type publishedEvent struct {
	name    string
	key     string
	payload any
	span    trace.SpanContext
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(ctx context.Context, name, key string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{name, key, payload, trace.SpanContextFromContext(ctx)})
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.name
	}
	return out
}
