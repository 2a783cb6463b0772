package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes notifications to one topic, keyed by order id so
// every event of an order lands on the same partition.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(topic string, brokers ...string) *KafkaNotifier {
	return NewKafkaNotifierWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaNotifierWithWriter(w *kafka.Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

func (k *KafkaNotifier) OnOrderCompleted(ctx context.Context, n d.OrderNotification) error {
	return k.publish(ctx, d.EventOrderCompleted, n)
}

func (k *KafkaNotifier) OnOrderCancelled(ctx context.Context, n d.OrderNotification) error {
	return k.publish(ctx, d.EventOrderCancelled, n)
}

func (k *KafkaNotifier) publish(ctx context.Context, eventType string, n d.OrderNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.OrderID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to kafka: %w", eventType, err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
