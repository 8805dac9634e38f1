package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/satvik-basket/backend/internal/messaging"
	kafkaGo "github.com/segmentio/kafka-go"
)

type kafkaPublisher struct {
	brokers []string
}

// NewPublisher creates a Kafka-backed event publisher.
func NewPublisher(brokers []string) messaging.Publisher {
	return &kafkaPublisher{brokers: brokers}
}

func (k *kafkaPublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	w := &kafkaGo.Writer{
		Addr:     kafkaGo.TCP(k.brokers...),
		Topic:    topic,
		Balancer: &kafkaGo.LeastBytes{},
	}
	defer w.Close()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return w.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(key),
		Value: payload,
	})
}
