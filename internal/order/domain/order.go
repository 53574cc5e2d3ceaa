package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is an immutable snapshot of a commercial order. The With* methods
// return modified copies; stores persist whole snapshots.
type Order struct {
	ID              string
	ProductSKU      string
	ProductQuantity int
	ClientCPF       string
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	StockReserved   bool
	Payment         PaymentDetails
	// Version is the optimistic concurrency token owned by the store.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentDetails is owned by exactly one Order and shares its lifetime.
type PaymentDetails struct {
	Method     PaymentMethod
	CardNumber string
	Status     PaymentStatus
}

// NewOrder validates the commercial data and returns an OPEN order with a
// PENDING payment. The total is unit price times quantity.
func NewOrder(id, sku string, qty int, cpf string, method PaymentMethod, cardNumber string, unitPrice decimal.Decimal) (Order, error) {
	total := unitPrice.Mul(decimal.NewFromInt(int64(qty)))

	rules := append(orderRules(sku, qty, cpf, total), paymentRules(method, cardNumber)...)
	if err := validate(rules...); err != nil {
		return Order{}, err
	}

	now := time.Now().UTC()
	return Order{
		ID:              id,
		ProductSKU:      sku,
		ProductQuantity: qty,
		ClientCPF:       cpf,
		TotalAmount:     total,
		Status:          StatusOpen,
		Payment: PaymentDetails{
			Method:     method,
			CardNumber: cardNumber,
			Status:     PaymentPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (o Order) WithStatus(s OrderStatus) Order {
	o.Status = s
	return o
}

func (o Order) WithStockReserved(reserved bool) Order {
	o.StockReserved = reserved
	return o
}

func (o Order) WithPaymentStatus(s PaymentStatus) Order {
	o.Payment.Status = s
	return o
}

// CanClose is the closing rule: both legs must be positive.
func (o Order) CanClose() bool {
	return o.StockReserved && o.Payment.Status == PaymentApproved
}
