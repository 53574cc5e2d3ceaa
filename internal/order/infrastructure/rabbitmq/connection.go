package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

const (
	ExchangeName = "order.events"
	ExchangeType = "topic"

	DeadLetterExchange = "order.events.dlx"
	DeadLetterQueue    = "order.events.dlq"
)

// Queues are durable, named after their routing key, and dead-letter to
// DeadLetterExchange.
var Queues = []string{
	domain.RouteReserveStock,
	domain.RouteProcessPayment,
	domain.RouteReleaseStock,
	domain.RouteRefundPayment,
	domain.RouteStockReserved,
	domain.RoutePaymentProcessed,
	domain.RouteOrderReceived,
}

// Dial connects to the broker, retrying while it starts up.
func Dial(ctx context.Context, log *slog.Logger, url string) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 1; attempt <= 5; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Warn("rabbitmq connect failed", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
}

// Setup declares the topic exchange, the dead-letter exchange and queue, and
// one bound queue per routing key.
func Setup(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("could not declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("could not declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("could not declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(DeadLetterQueue, "", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("could not bind dead-letter queue: %w", err)
	}

	args := amqp.Table{"x-dead-letter-exchange": DeadLetterExchange}
	for _, q := range Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, args); err != nil {
			return fmt.Errorf("could not declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(q, q, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("could not bind queue %s: %w", q, err)
		}
	}
	return nil
}
