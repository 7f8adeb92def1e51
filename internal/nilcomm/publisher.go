package nilcomm

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher emits protocol events. The amqp implementation publishes to
// the events topic exchange; tests substitute a recorder.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// BusPublisher publishes JSON events on a dedicated channel.
type BusPublisher struct {
	ch *amqp.Channel
}

// NewBusPublisher opens a publishing channel on the bus connection.
func NewBusPublisher(conn *amqp.Connection) (*BusPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publisher channel: %w", err)
	}
	return &BusPublisher{ch: ch}, nil
}

// Publish emits one event to the events exchange.
func (p *BusPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, ExchangeEvents, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

// Close releases the publishing channel.
func (p *BusPublisher) Close() error {
	return p.ch.Close()
}
