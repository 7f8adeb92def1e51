package nilcomm

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Bus topology. Commands arrive on a direct exchange, events leave on a
// topic exchange, and nacked commands land on the dead-letter queue where
// they expire after the configured TTL.
const (
	ExchangeCommands   = "commands"
	ExchangeEvents     = "events"
	ExchangeDeadLetter = "commands.dlx"

	QueueStoreSecret         = "commands.store_secret"
	QueueStartQueryExecution = "commands.start_query_execution"
	QueueDeadLetter          = "commands.dead_letter"

	RouteStoreSecret         = "store_secret"
	RouteStartQueryExecution = "start_query_execution"
)

// DeclareTopology asserts the exchanges, queues and bindings the processor
// relies on. Declarations are idempotent against an already-asserted broker.
func DeclareTopology(ch *amqp.Channel, deadLetterTTL time.Duration) error {
	if err := ch.ExchangeDeclare(ExchangeCommands, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare commands exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(ExchangeEvents, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}
	// Fanout so dead-lettered commands land on the one dead-letter queue
	// regardless of their original routing key.
	if err := ch.ExchangeDeclare(ExchangeDeadLetter, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(QueueDeadLetter, true, false, false, false, amqp.Table{
		"x-message-ttl": deadLetterTTL.Milliseconds(),
	}); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(QueueDeadLetter, "", ExchangeDeadLetter, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	commandQueues := []struct {
		queue string
		route string
	}{
		{QueueStoreSecret, RouteStoreSecret},
		{QueueStartQueryExecution, RouteStartQueryExecution},
	}
	for _, cq := range commandQueues {
		if _, err := ch.QueueDeclare(cq.queue, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": ExchangeDeadLetter,
		}); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", cq.queue, err)
		}
		if err := ch.QueueBind(cq.queue, cq.route, ExchangeCommands, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", cq.queue, err)
		}
	}
	return nil
}
