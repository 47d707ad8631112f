package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streadway/amqp"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a RabbitMQ topic exchange, using the
// event type as routing key.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
}

var _ Publisher = (*AMQPPublisher)(nil)

// DialAMQP connects to amqpURL and declares a durable topic exchange.
func DialAMQP(amqpURL, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// NewAMQPPublisher wraps an already open channel.
func NewAMQPPublisher(ch Channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{channel: ch, exchange: exchange}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.channel.Publish(p.exchange, string(e.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Type:         string(e.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// AMQPConsumer reads events from a durable queue bound to the exchange.
type AMQPConsumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// DialAMQPConsumer declares queue, binds it to exchange for each routing
// key pattern (e.g. "order.#"), and limits unacknowledged deliveries to
// prefetch.
func DialAMQPConsumer(amqpURL, exchange, queue string, prefetch int, keys ...string) (*AMQPConsumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(step string, err error) (*AMQPConsumer, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to %s: %w", step, err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fail("declare queue", err)
	}
	for _, key := range keys {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			return fail("bind queue", err)
		}
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail("set qos", err)
	}
	return &AMQPConsumer{conn: conn, ch: ch, queue: queue}, nil
}

// Run delivers events to handle until ctx is done. Successful deliveries are
// acked, failed ones requeued, and undecodable ones rejected without requeue.
func (c *AMQPConsumer) Run(ctx context.Context, handle func(context.Context, Event) error) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			settle(ctx, d, handle)
		}
	}
}

// Acknowledger settles a delivery; *amqp.Delivery implements it.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(ctx context.Context, d amqp.Delivery, handle func(context.Context, Event) error) {
	_ = Settle(ctx, &d, d.Body, handle)
}

// Settle decodes body, runs handle, and acks or nacks through ack.
func Settle(ctx context.Context, ack Acknowledger, body []byte, handle func(context.Context, Event) error) error {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		_ = ack.Nack(false, false)
		return fmt.Errorf("decode event: %w", err)
	}
	if err := handle(ctx, e); err != nil {
		_ = ack.Nack(false, true)
		return err
	}
	return ack.Ack(false)
}

// Close releases the channel and connection.
func (c *AMQPConsumer) Close() {
	c.ch.Close()
	c.conn.Close()
}
