// Package inbound decodes broker deliveries and hands them to the saga
// coordinator or the order intake. Kafka and RabbitMQ consumers share it.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	sagadomain "github.com/dmehra2102/Order-Fulfillment-Saga/internal/orchestrator/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

// ErrMalformed marks a delivery whose body cannot be decoded. Redelivering
// it can never succeed.
var ErrMalformed = errors.New("malformed message")

type Handler func(ctx context.Context, body []byte) error

type OutcomeHandler interface {
	HandleStockOutcome(ctx context.Context, ev sagadomain.StockOutcome) error
	HandlePaymentOutcome(ctx context.Context, ev sagadomain.PaymentOutcome) error
}

type OrderIntake interface {
	ReceiveOrder(ctx context.Context, ev domain.OrderReceived) (domain.Order, error)
}

// Routes maps each inbound routing key to its handler. intake may be nil
// when the process does not accept orders from the broker.
func Routes(saga OutcomeHandler, intake OrderIntake) map[string]Handler {
	routes := map[string]Handler{
		domain.RouteStockReserved: func(ctx context.Context, body []byte) error {
			var ev sagadomain.StockOutcome
			if err := decode(body, &ev); err != nil {
				return err
			}
			return saga.HandleStockOutcome(ctx, ev)
		},
		domain.RoutePaymentProcessed: func(ctx context.Context, body []byte) error {
			var ev sagadomain.PaymentOutcome
			if err := decode(body, &ev); err != nil {
				return err
			}
			return saga.HandlePaymentOutcome(ctx, ev)
		},
	}
	if intake != nil {
		routes[domain.RouteOrderReceived] = func(ctx context.Context, body []byte) error {
			var ev domain.OrderReceived
			if err := json.Unmarshal(body, &ev); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			_, err := intake.ReceiveOrder(ctx, ev)
			return err
		}
	}
	return routes
}

// Topics lists the routing keys of routes.
func Topics(routes map[string]Handler) []string {
	topics := make([]string, 0, len(routes))
	for t := range routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

type outcome interface {
	sagadomain.StockOutcome | sagadomain.PaymentOutcome
}

func decode[T outcome](body []byte, ev *T) error {
	if err := json.Unmarshal(body, ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var id string
	switch v := any(*ev).(type) {
	case sagadomain.StockOutcome:
		id = v.OrderID
	case sagadomain.PaymentOutcome:
		id = v.OrderID
	}
	if id == "" {
		return fmt.Errorf("%w: missing orderId", ErrMalformed)
	}
	return nil
}
