// Package simulator stands in for the external stock and payment services
// during development: it answers forward commands with outcome events.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	sagadomain "github.com/dmehra2102/Order-Fulfillment-Saga/internal/orchestrator/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/inbound"
)

type Publisher interface {
	Publish(ctx context.Context, msg domain.Command) error
}

type Service struct {
	log         *slog.Logger
	pub         Publisher
	maxQuantity int
	maxAmount   decimal.Decimal
}

// NewService rejects reservations above maxQuantity and payments above
// maxAmount.
func NewService(log *slog.Logger, pub Publisher, maxQuantity int, maxAmount decimal.Decimal) *Service {
	return &Service{log: log, pub: pub, maxQuantity: maxQuantity, maxAmount: maxAmount}
}

func (s *Service) Reserve(ctx context.Context, cmd domain.ReserveStock) error {
	ok := cmd.Quantity <= s.maxQuantity
	if !ok {
		s.log.Info("stock reservation rejected", "order_id", cmd.OrderID, "sku", cmd.ProductSKU, "quantity", cmd.Quantity)
	}
	return s.pub.Publish(ctx, sagadomain.StockOutcome{OrderID: cmd.OrderID, Success: ok})
}

func (s *Service) Charge(ctx context.Context, cmd domain.ProcessPayment) error {
	ok := cmd.Amount.LessThanOrEqual(s.maxAmount)
	if !ok {
		s.log.Info("payment rejected", "order_id", cmd.OrderID, "amount", cmd.Amount.StringFixed(2))
	}
	return s.pub.Publish(ctx, sagadomain.PaymentOutcome{OrderID: cmd.OrderID, Success: ok})
}

// Routes maps the four command routing keys to their handlers. Compensations
// are only logged.
func (s *Service) Routes() map[string]inbound.Handler {
	return map[string]inbound.Handler{
		domain.RouteReserveStock: func(ctx context.Context, body []byte) error {
			var cmd domain.ReserveStock
			if err := decode(body, &cmd); err != nil {
				return err
			}
			return s.Reserve(ctx, cmd)
		},
		domain.RouteProcessPayment: func(ctx context.Context, body []byte) error {
			var cmd domain.ProcessPayment
			if err := decode(body, &cmd); err != nil {
				return err
			}
			return s.Charge(ctx, cmd)
		},
		domain.RouteReleaseStock: func(ctx context.Context, body []byte) error {
			var cmd domain.ReleaseStock
			if err := decode(body, &cmd); err != nil {
				return err
			}
			s.log.Info("stock released", "order_id", cmd.OrderID, "sku", cmd.ProductSKU, "quantity", cmd.Quantity)
			return nil
		},
		domain.RouteRefundPayment: func(ctx context.Context, body []byte) error {
			var cmd domain.RefundPayment
			if err := decode(body, &cmd); err != nil {
				return err
			}
			s.log.Info("payment refunded", "order_id", cmd.OrderID, "amount", cmd.Amount.StringFixed(2))
			return nil
		},
	}
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", inbound.ErrMalformed, err)
	}
	return nil
}
