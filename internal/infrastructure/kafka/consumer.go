package kafka

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/example/promo-checkout/internal/domain/order"
)

// EventHandler processes one decoded order event.
type EventHandler func(ctx context.Context, event order.Event) error

// Consumer reads order events from the orders topic as part of a consumer
// group. Handler failures are logged and skipped rather than retried, so a
// poison message cannot stall the group.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[Kafka] Error reading message: %v", err)
				continue
			}

			var event order.Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Printf("[Kafka] Skipping undecodable message for key %s: %v", msg.Key, err)
				continue
			}

			if err := handler(ctx, event); err != nil {
				log.Printf("[Kafka] Error handling %s event for order %s: %v", event.Type, event.OrderID, err)
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
