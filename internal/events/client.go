package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"gastos/internal/log"
)

const (
	publishTimeout = 5 * time.Second
	prefetch       = 16
)

// ErrClosed is returned by Consume when the broker drops the channel.
var ErrClosed = errors.New("events: channel closed")

// Client publishes to a fanout exchange and consumes from a queue of its own
// bound to it, so every instance sees every change.
type Client struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	publish  sync.Mutex // amqp channels are not safe for concurrent publishing
	exchange string
	queue    string
	source   string
	logger   *log.Logger
}

// NewClient dials url and declares exchange plus a private queue named
// "<queuePrefix>.<instance id>" that the broker deletes with the connection.
func NewClient(url, exchange, queuePrefix string, logger *log.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	source := uuid.NewString()
	c := &Client{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    queuePrefix + "." + source,
		source:   source,
		logger:   logger.WithComponent(log.ComponentEvents),
	}
	if err := c.declare(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) declare() error {
	if err := c.ch.ExchangeDeclare(c.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}
	// exclusive and auto-delete: the queue lives as long as this connection
	if _, err := c.ch.QueueDeclare(c.queue, false, true, true, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	if err := c.ch.QueueBind(c.queue, "", c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", c.queue, err)
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	return nil
}

// Source identifies this instance in published messages.
func (c *Client) Source() string {
	return c.source
}

// Publish implements Publisher. Messages without a source are stamped with this instance's.
func (c *Client) Publish(ctx context.Context, msg *Message) error {
	if msg.Source == "" {
		msg.Source = c.source
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.publish.Lock()
	err = c.ch.PublishWithContext(ctx, c.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		AppId:       c.source,
		Timestamp:   msg.Timestamp,
		Type:        msg.Type,
		Body:        body,
	})
	c.publish.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}

	c.logger.DebugContext(ctx, "Published event",
		log.FieldOperation, log.OpPublish, log.FieldEvent, msg.Type)
	return nil
}

// Consume hands messages from other instances to handler until ctx ends or
// the broker closes the channel.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, c.source, false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.logger.InfoContext(ctx, "Started consuming events",
		log.FieldOperation, log.OpConsume, "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrClosed
			}
			c.settle(d, dispatch(ctx, c.logger, c.source, d.Body, handler))
		}
	}
}

func (c *Client) settle(d amqp.Delivery, o outcome) {
	var err error
	switch o {
	case ack:
		err = d.Ack(false)
	case reject:
		err = d.Reject(false)
	case requeue:
		err = d.Nack(false, true)
	}
	if err != nil {
		c.logger.Warn("Failed to settle delivery", log.Err(err))
	}
}

// Close releases the channel and the connection.
func (c *Client) Close() error {
	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
	}
	if c.conn != nil && !c.conn.IsClosed() {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}
