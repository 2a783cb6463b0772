package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	d "github.com/fjod/photo_checkout/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingCompleted = "order.completed"
	routingCancelled = "order.cancelled"
)

var ErrNotConfirmed = errors.New("broker did not confirm the publish")

// RabbitNotifier publishes to a durable topic exchange with publisher
// confirms; a publish only succeeds once the broker has acked it.
type RabbitNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewRabbitNotifier(url, exchange string) (*RabbitNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	return &RabbitNotifier{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *RabbitNotifier) OnOrderCompleted(ctx context.Context, n d.OrderNotification) error {
	return p.publish(ctx, routingCompleted, d.EventOrderCompleted, n)
}

func (p *RabbitNotifier) OnOrderCancelled(ctx context.Context, n d.OrderNotification) error {
	return p.publish(ctx, routingCancelled, d.EventOrderCancelled, n)
}

func (p *RabbitNotifier) publish(ctx context.Context, key, eventType string, n d.OrderNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		p.exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.OrderID + ":" + eventType,
			Type:         eventType,
			Timestamp:    n.At,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return ErrNotConfirmed
	}
	return nil
}

func (p *RabbitNotifier) Close() error {
	return errors.Join(p.ch.Close(), p.conn.Close())
}
