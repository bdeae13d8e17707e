// Package broadcast fans task and activity events out to live subscribers.
//
// Delivery is fire-and-forget: publishing never blocks, every subscriber owns a
// bounded buffer, and an event that does not fit is dropped for that subscriber
// only. There is no replay; a subscriber sees events published after it joined.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
)

// Event names emitted to subscribers.
const (
	TaskCreated = "task:created"
	TaskUpdated = "task:updated"
	TaskDeleted = "task:deleted"
	ActivityLog = "activity:log"
)

// DefaultBuffer is the per-subscriber queue length used when none is configured.
const DefaultBuffer = 64

// Event is one notification as delivered to subscribers.
type Event struct {
	Name string `json:"event"`
	// Key groups events about the same task; sinks use it for partitioning.
	Key  string    `json:"-"`
	Data any       `json:"data"`
	At   time.Time `json:"-"`
	// SpanContext is the trace of the mutation that produced the event.
	SpanContext trace.SpanContext `json:"-"`
}

// Context returns parent carrying the event's trace, so sink calls join the
// originating request's trace instead of starting a new one.
func (e Event) Context(parent context.Context) context.Context {
	if !e.SpanContext.IsValid() {
		return parent
	}
	return trace.ContextWithRemoteSpanContext(parent, e.SpanContext)
}

// ActivityEvent is the activity:log payload. Timestamp is the broadcast time and
// shadows the record's stored creation time in the JSON encoding.
type ActivityEvent struct {
	*domain.ActivityRecord
	Timestamp time.Time `json:"timestamp"`
}

// Subscription is a single subscriber's view of the bus.
type Subscription struct {
	id    uint64
	name  string
	ch    chan Event
	drops atomic.Int64
}

// Events returns the channel the subscriber reads from. It is closed on Unsubscribe.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.drops.Load() }

// Bus is an in-process publish/subscribe hub with non-blocking publish.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID atomic.Uint64
	buffer int
	logger *slog.Logger
	now    func() time.Time
}

// NewBus creates a bus whose subscribers each buffer up to buffer events.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers a new subscriber. name only labels logs.
func (b *Bus) Subscribe(name string) *Subscription {
	sub := &Subscription{
		id:   b.nextID.Add(1),
		name: name,
		ch:   make(chan Event, b.buffer),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	telemetry.BroadcastSubscribers.Set(float64(count))
	b.logger.Debug("subscriber joined", slog.String("subscriber", name), slog.Int("subscribers", count))
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub.id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	count := len(b.subs)
	b.mu.Unlock()

	telemetry.BroadcastSubscribers.Set(float64(count))
	b.logger.Debug("subscriber left",
		slog.String("subscriber", sub.name),
		slog.Int64("dropped", sub.Dropped()),
		slog.Int("subscribers", count),
	)
}

// Publish delivers an event to every current subscriber without blocking.
// Subscribers whose buffer is full miss this event. Only the span context of ctx
// travels with the event; its cancellation does not.
func (b *Bus) Publish(ctx context.Context, name, key string, payload any) {
	ev := Event{
		Name:        name,
		Key:         key,
		Data:        payload,
		At:          b.now(),
		SpanContext: trace.SpanContextFromContext(ctx),
	}
	if rec, ok := payload.(*domain.ActivityRecord); ok {
		ev.Data = ActivityEvent{ActivityRecord: rec, Timestamp: ev.At}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.drops.Add(1)
			telemetry.BroadcastDropped.WithLabelValues(name).Inc()
		}
	}
	telemetry.BroadcastPublished.WithLabelValues(name).Inc()
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	for _, sub := range subs {
		close(sub.ch)
	}
	b.mu.Unlock()
	telemetry.BroadcastSubscribers.Set(0)
}
