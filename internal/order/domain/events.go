package domain

import "github.com/shopspring/decimal"

// Routing keys of the order.events topology. Kafka uses them as topic names.
const (
	RouteReserveStock     = "reserve-stock"
	RouteProcessPayment   = "process-payment"
	RouteReleaseStock     = "release-stock"
	RouteRefundPayment    = "refund-payment"
	RouteStockReserved    = "stock-reserved"
	RoutePaymentProcessed = "payment-processed"
	RouteOrderReceived    = "order-received"
)

// Command is an outbound forward or compensating command. Its concrete kind
// decides the routing key.
type Command interface {
	RoutingKey() string
	AggregateID() string
}

type ReserveStock struct {
	OrderID    string `json:"orderId"`
	ProductSKU string `json:"productSku"`
	Quantity   int    `json:"quantity"`
}

type ProcessPayment struct {
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	CardNumber    string          `json:"cardNumber"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
}

type ReleaseStock struct {
	OrderID    string `json:"orderId"`
	ProductSKU string `json:"productSku"`
	Quantity   int    `json:"quantity"`
}

type RefundPayment struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

func (c ReserveStock) RoutingKey() string   { return RouteReserveStock }
func (c ProcessPayment) RoutingKey() string { return RouteProcessPayment }
func (c ReleaseStock) RoutingKey() string   { return RouteReleaseStock }
func (c RefundPayment) RoutingKey() string  { return RouteRefundPayment }

func (c ReserveStock) AggregateID() string   { return c.OrderID }
func (c ProcessPayment) AggregateID() string { return c.OrderID }
func (c ReleaseStock) AggregateID() string   { return c.OrderID }
func (c RefundPayment) AggregateID() string  { return c.OrderID }

// OrderReceived is a new-order request delivered through the broker.
type OrderReceived struct {
	ProductSKU      string `json:"productSku"`
	ProductQuantity int    `json:"productQuantity"`
	ClientCPF       string `json:"clientCpf"`
	PaymentMethod   string `json:"paymentMethod"`
	CardNumber      string `json:"cardNumber"`
}
