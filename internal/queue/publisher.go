package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/service"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

type publishFunc func(ctx context.Context, exchange, key string, msg amqp.Publishing) error

// Publisher implements service.EventPublisher on a durable topic exchange.
// The event type is the routing key.
type Publisher struct {
	exchange string
	publish  publishFunc
}

// NewPublisher declares exchange on conn and returns a Publisher.
func NewPublisher(conn *Connection, exchange string) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if exchange == "" {
		return nil, errors.New("exchange name cannot be empty")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return newPublisher(exchange, func(ctx context.Context, ex, key string, msg amqp.Publishing) error {
		ch, err := conn.Channel()
		if err != nil {
			return err
		}
		return ch.PublishWithContext(ctx, ex, key, false, false, msg)
	}), nil
}

func newPublisher(exchange string, fn publishFunc) *Publisher {
	return &Publisher{exchange: exchange, publish: fn}
}

// Publish sends e as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, e service.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    e.At,
		MessageId:    e.MessageID + ":" + string(e.Type),
		Body:         body,
	}
	if err := p.publish(ctx, p.exchange, string(e.Type), msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}
