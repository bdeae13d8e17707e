package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ramiqadoumi/go-task-board/internal/kafka"
	"github.com/ramiqadoumi/go-task-board/pkg/telemetry"
)

// KafkaSink forwards every bus event to a Kafka topic so other systems can follow
// the board. It is an ordinary subscriber: when Kafka is slow the sink's buffer
// fills and the bus drops events for it, never for request handling.
type KafkaSink struct {
	bus      *Bus
	producer kafka.Producer
	logger   *slog.Logger
}

// NewKafkaSink wires a producer to the bus. Call Run to start forwarding.
func NewKafkaSink(bus *Bus, producer kafka.Producer, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{bus: bus, producer: producer, logger: logger}
}

// Run forwards events until ctx is cancelled or the bus is closed.
func (s *KafkaSink) Run(ctx context.Context) {
	sub := s.bus.Subscribe("kafka:" + s.producer.Topic())
	defer s.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			s.forward(ctx, ev)
		}
	}
}

func (s *KafkaSink) forward(ctx context.Context, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal event for kafka", slog.String("event", ev.Name), slog.String("error", err.Error()))
		return
	}
	if err := s.producer.Publish(ev.Context(ctx), ev.Key, ev.Name, value); err != nil {
		telemetry.BroadcastSinkErrors.WithLabelValues("kafka").Inc()
		s.logger.Warn("kafka sink publish failed",
			slog.String("event", ev.Name),
			slog.String("key", ev.Key),
			slog.String("error", err.Error()),
		)
	}
}
