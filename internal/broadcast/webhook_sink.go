package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
)

// WebhookSink POSTs every bus event as JSON to a fixed URL. Like the Kafka sink it
// is an ordinary subscriber and loses events when the endpoint falls behind.
type WebhookSink struct {
	bus    *Bus
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSink creates a sink for url. Call Run to start delivering.
func NewWebhookSink(bus *Bus, url string, logger *slog.Logger) *WebhookSink {
	return &WebhookSink{
		bus:    bus,
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Run delivers events until ctx is cancelled or the bus is closed.
func (s *WebhookSink) Run(ctx context.Context) {
	sub := s.bus.Subscribe("webhook:" + s.url)
	defer s.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := s.deliver(ctx, ev); err != nil {
				telemetry.BroadcastSinkErrors.WithLabelValues("webhook").Inc()
				s.logger.Warn("webhook delivery failed",
					slog.String("event", ev.Name),
					slog.String("url", s.url),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (s *WebhookSink) deliver(ctx context.Context, ev Event) error {
	ctx, span := otel.Tracer("broadcast").Start(ev.Context(ctx), "broadcast.webhook")
	defer span.End()
	span.SetAttributes(attribute.String("board.event", ev.Name), attribute.String("webhook.url", s.url))

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Board-Event", ev.Name)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http call failed")
		return fmt.Errorf("webhook call to %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("webhook %s returned status %d", s.url, resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status code")
		return err
	}
	return nil
}
