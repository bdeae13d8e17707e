package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// EventHeader carries the board event name on every message.
const EventHeader = "board-event"

// Producer publishes board events to a single Kafka topic.
type Producer interface {
	Publish(ctx context.Context, key, event string, value []byte) error
	Topic() string
	Close() error
}

type producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a Kafka producer writing to topic on the given brokers.
func NewProducer(brokers []string, topic string) Producer {
	w := &kafka.Writer{
		Addr:  kafka.TCP(brokers...),
		Topic: topic,
		// Messages for one task share a key and therefore a partition.
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &producer{writer: w, topic: topic}
}

func (p *producer) Topic() string { return p.topic }

func (p *producer) Publish(ctx context.Context, key, event string, value []byte) error {
	headers := NewHeaderCarrier(event)
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s to %s: %w", event, p.topic, err)
	}
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}
