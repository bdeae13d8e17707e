package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
)

func TestWebhookSink_PostsEvents(t *testing.T) {
	type delivery struct {
		header string
		body   []byte
	}
	got := make(chan delivery, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{header: r.Header.Get("X-Board-Event"), body: body}
		if r.Header.Get("X-Board-Event") == TaskDeleted {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	bus := NewBus(4, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewWebhookSink(bus, srv.URL, slog.Default()).Run(ctx)
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(context.Background(), TaskDeleted, "t0", &domain.Task{ID: "t0"})
	bus.Publish(context.Background(), TaskUpdated, "t1", &domain.Task{ID: "t1", Version: 2})

	first := <-got
	assert.Equal(t, TaskDeleted, first.header)

	second := <-got
	assert.Equal(t, TaskUpdated, second.header, "a failed delivery does not stop the sink")
	var frame struct {
		Event string      `json:"event"`
		Data  domain.Task `json:"data"`
	}
	require.NoError(t, json.Unmarshal(second.body, &frame))
	assert.Equal(t, 2, frame.Data.Version)
}

func TestWebhookSink_PropagatesTraceparent(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("traceparent")
	}))
	defer srv.Close()

	bus := NewBus(4, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewWebhookSink(bus, srv.URL, slog.Default()).Run(ctx)
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	reqCtx, span := tp.Tracer("test").Start(context.Background(), "DELETE /tasks/t1")
	bus.Publish(reqCtx, TaskDeleted, "t1", &domain.Task{ID: "t1"})
	span.End()

	select {
	case header := <-got:
		assert.Contains(t, header, span.SpanContext().TraceID().String())
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
}
