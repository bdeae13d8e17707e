package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Message is a board event read back from Kafka.
type Message struct {
	Event     string
	Key       string
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time
}

// HandlerFunc processes a single message. Returning an error stops the consumer.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer reads board events from a Kafka topic.
type Consumer interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

type consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer creates a Kafka consumer for topic. An empty groupID reads the
// topic from the latest offset without committing, which suits tailing.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10 MB
		MaxWait:  500 * time.Millisecond,
	}
	if groupID == "" {
		cfg.StartOffset = kafka.LastOffset
	} else {
		cfg.StartOffset = kafka.FirstOffset
	}
	return &consumer{reader: kafka.NewReader(cfg), logger: logger}
}

// Subscribe reads messages in a loop until ctx is cancelled or handler fails.
func (c *consumer) Subscribe(ctx context.Context, handler HandlerFunc) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // normal shutdown
			}
			return fmt.Errorf("kafka read: %w", err)
		}

		carrier := HeaderCarrier(m.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		msg := Message{
			Event:     carrier.Event(),
			Key:       string(m.Key),
			Value:     m.Value,
			Partition: m.Partition,
			Offset:    m.Offset,
			Time:      m.Time,
		}
		if err := handler(msgCtx, msg); err != nil {
			c.logger.Error("message handler failed",
				slog.String("event", msg.Event),
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
			return err
		}
	}
}

func (c *consumer) Close() error {
	return c.reader.Close()
}
