package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/firms-fire-etl/internal/domain"
)

// Publisher produces one message per newly stored fire point.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish serializes and writes the points in a single WriteMessages call.
func (p *Publisher) Publish(ctx context.Context, points []domain.FirePoint) error {
	if len(points) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(points))
	for i := range points {
		msg, err := serializeToMessage(points[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d fire points: %w", len(msgs), err)
	}
	p.logger.Debug("fire points published", "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a FirePoint into a Kafka message keyed by its
// storage identity so all copies of an observation land on one partition.
// The message timestamp is left to the writer; observation time travels in
// the observed_at header.
func serializeToMessage(point domain.FirePoint) (kafkago.Message, error) {
	data, err := json.Marshal(point)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize fire point: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(point.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "observed_at", Value: []byte(point.Time.UTC().Format(time.RFC3339))},
		},
	}, nil
}
