package application

import (
	"context"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/shopspring/decimal"
)

// OrderStore persists whole Order snapshots.
//
// FindByID returns domain.ErrOrderNotFound on a miss. Update rejects a
// snapshot whose Version no longer matches the stored row with
// domain.ErrConflict and returns the stored snapshot with the new Version.
type OrderStore interface {
	Save(ctx context.Context, o domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, id string) (domain.Order, error)
	Update(ctx context.Context, o domain.Order) (domain.Order, error)
	Delete(ctx context.Context, id string) error
}

// EventPublisher emits forward and compensating commands. The transport
// derives the destination from cmd.RoutingKey().
type EventPublisher interface {
	Publish(ctx context.Context, cmd domain.Command) error
}

// PriceProvider resolves the unit price of a product. Unknown products
// yield domain.ErrProductNotFound.
type PriceProvider interface {
	UnitPrice(ctx context.Context, sku string) (decimal.Decimal, error)
}
