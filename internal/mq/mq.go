// Package mq provides RabbitMQ connectivity for the fleet services: the
// amr.events topic exchange, durable queues, and safe-ACK consumption.
package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/elektrokombinacija/amr-fleet/internal/event"
)

const (
	connectRetryDelay = 2 * time.Second
	prefetchCount     = 200
)

// Connect dials RabbitMQ, retrying until the broker accepts or the context
// is done.
func Connect(ctx context.Context, url string, log zerolog.Logger) (*amqp.Connection, error) {
	for {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Warn().Err(err).Msg("amqp dial failed, retrying")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("amqp dial: %w", err)
		case <-time.After(connectRetryDelay):
		}
	}
}

// Publisher publishes canonical JSON events to the topic exchange.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

// NewPublisher opens a channel and declares the topic exchange.
func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

// Publish sends a persistent JSON message under the routing key.
func (p *Publisher) Publish(routingKey string, payload map[string]any) error {
	body, err := event.Marshal(payload)
	if err != nil {
		return err
	}
	err = p.channel.PublishWithContext(context.Background(), p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// Close releases the channel.
func (p *Publisher) Close() error {
	return p.channel.Close()
}

// HandlerFunc processes one consumed message.
type HandlerFunc func(routingKey string, body []byte) error

// Consumer consumes durable queues bound to the topic exchange.
type Consumer struct {
	channel  *amqp.Channel
	exchange string
	log      zerolog.Logger
}

// NewConsumer opens a consuming channel with prefetch applied.
func NewConsumer(conn *amqp.Connection, exchange string, log zerolog.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Consumer{channel: ch, exchange: exchange, log: log}, nil
}

// Consume binds the durable queue to the routing keys and processes
// deliveries until the context ends or the channel dies. Every delivery is
// ACKed, including ones whose handler failed; failures are logged so a
// poison message cannot wedge the queue.
func (c *Consumer) Consume(ctx context.Context, queueName string, routingKeys []string, handler HandlerFunc) error {
	queue, err := c.channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	for _, key := range routingKeys {
		if err := c.channel.QueueBind(queue.Name, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", queueName, key, err)
		}
	}

	deliveries, err := c.channel.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("consume %s: channel closed", queueName)
			}
			c.handle(delivery, handler)
		}
	}
}

func (c *Consumer) handle(delivery amqp.Delivery, handler HandlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("routing_key", delivery.RoutingKey).Msg("handler panicked")
		}
		if err := delivery.Ack(false); err != nil {
			c.log.Error().Err(err).Str("routing_key", delivery.RoutingKey).Msg("ack failed")
		}
	}()
	if err := handler(delivery.RoutingKey, delivery.Body); err != nil {
		c.log.Error().Err(err).Str("routing_key", delivery.RoutingKey).Msg("handler error")
	}
}

// Close releases the channel.
func (c *Consumer) Close() error {
	return c.channel.Close()
}
