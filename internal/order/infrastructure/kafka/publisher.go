package kafka

import (
	"context"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/outbox"
)

// Publisher writes commands straight to Kafka, bypassing the outbox table.
// Each routing key is a topic and the order id is the message key, so all
// commands of one order land on one partition.
type Publisher struct {
	dispatch *outbox.Dispatcher
}

func NewPublisher(dispatch *outbox.Dispatcher) *Publisher {
	return &Publisher{dispatch: dispatch}
}

func (p *Publisher) Publish(ctx context.Context, cmd domain.Command) error {
	event, err := outbox.NewEvent(ctx, "order", cmd.AggregateID(), cmd.RoutingKey(), cmd)
	if err != nil {
		return err
	}
	return p.dispatch.Dispatch(ctx, event)
}
