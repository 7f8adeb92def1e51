package nilcomm

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one raw command payload. A nil return acks the
// delivery; an error nacks it without requeue, routing it to dead-letter.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer runs one blocking receive loop per queue. Distinct messages are
// processed concurrently up to the prefetch bound; no delivery-order
// guarantee is kept across mapping ids.
type Consumer struct {
	conn     *amqp.Connection
	prefetch int
	log      *zap.Logger
}

// NewConsumer creates a consumer over an established bus connection.
func NewConsumer(conn *amqp.Connection, prefetch int, log *zap.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 10
	}
	return &Consumer{conn: conn, prefetch: prefetch, log: log}
}

// Run consumes the queue until the context is cancelled or the delivery
// channel closes. A handler failure never takes the loop down: the message
// is nacked and consumption continues.
func (c *Consumer) Run(ctx context.Context, queue string, handler HandlerFunc) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel for %s: %w", queue, err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch on %s: %w", queue, err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", queue, err)
	}

	c.log.Info("consuming queue", zap.String("queue", queue), zap.Int("prefetch", c.prefetch))

	// In-flight handlers are bounded by the prefetch count.
	slots := make(chan struct{}, c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, open := <-deliveries:
			if !open {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			slots <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-slots }()
				c.dispatch(ctx, queue, d, handler)
			}(delivery)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, queue string, d amqp.Delivery, handler HandlerFunc) {
	err := c.handleSafely(ctx, d.Body, handler)
	if err != nil {
		c.log.Warn("command failed, dead-lettering",
			zap.String("queue", queue), zap.Error(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.log.Error("failed to nack delivery", zap.String("queue", queue), zap.Error(nackErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.log.Error("failed to ack delivery", zap.String("queue", queue), zap.Error(ackErr))
	}
}

func (c *Consumer) handleSafely(ctx context.Context, body []byte, handler HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, body)
}
