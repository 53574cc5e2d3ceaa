package domain

import (
	"errors"
	"fmt"

	orderdomain "github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

// Leg names one of the two independent workflows the saga waits on.
type Leg string

const (
	LegStock   Leg = "stock"
	LegPayment Leg = "payment"
)

// StockOutcome is emitted by the stock service once per reservation attempt.
type StockOutcome struct {
	OrderID string `json:"orderId"`
	Success bool   `json:"success"`
}

// PaymentOutcome is emitted by the payment service once per processing attempt.
type PaymentOutcome struct {
	OrderID string `json:"orderId"`
	Success bool   `json:"success"`
}

// Outcomes travel like commands: keyed by order id on their own route.
func (e StockOutcome) RoutingKey() string   { return orderdomain.RouteStockReserved }
func (e PaymentOutcome) RoutingKey() string { return orderdomain.RoutePaymentProcessed }

func (e StockOutcome) AggregateID() string   { return e.OrderID }
func (e PaymentOutcome) AggregateID() string { return e.OrderID }

// SagaStalledError is returned when a payment outcome arrives for an order
// that stays invisible for the whole retry budget. The delivery must be
// redelivered or dead-lettered, never dropped.
type SagaStalledError struct {
	OrderID  string
	Attempts int
	Err      error
}

func (e *SagaStalledError) Error() string {
	return fmt.Sprintf("saga stalled for order %s after %d attempts: %v", e.OrderID, e.Attempts, e.Err)
}

func (e *SagaStalledError) Unwrap() error { return e.Err }

func IsStalled(err error) bool {
	var stalled *SagaStalledError
	return errors.As(err, &stalled)
}
