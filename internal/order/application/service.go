package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

// CreateOrderRequest carries the raw fields of a new-order request, as
// received over HTTP or the order-received queue.
type CreateOrderRequest struct {
	ProductSKU      string
	ProductQuantity int
	ClientCPF       string
	PaymentMethod   string
	CardNumber      string
}

type Service struct {
	log    *slog.Logger
	store  OrderStore
	pub    EventPublisher
	prices PriceProvider
	newID  func() string
	tracer trace.Tracer
}

func NewService(log *slog.Logger, store OrderStore, pub EventPublisher, prices PriceProvider) *Service {
	return &Service{
		log:    log,
		store:  store,
		pub:    pub,
		prices: prices,
		newID:  uuid.NewString,
		tracer: otel.Tracer("order-service"),
	}
}

// CreateOrder prices, validates and persists a new OPEN order, then fans out
// ReserveStock and ProcessPayment. When the order was saved but a command
// could not be published, the saved order is returned along with an error
// joining one *PublishError per failed command.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder", trace.WithAttributes(
		attribute.String("product.sku", req.ProductSKU),
		attribute.Int("product.quantity", req.ProductQuantity),
	))
	defer span.End()

	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Order{}, err
	}

	price, err := s.prices.UnitPrice(ctx, req.ProductSKU)
	if err != nil {
		s.log.Warn("price lookup failed", "sku", req.ProductSKU, "err", err)
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrProductNotFound, err)
	}

	o, err := domain.NewOrder(s.newID(), req.ProductSKU, req.ProductQuantity, req.ClientCPF, method, req.CardNumber, price)
	if err != nil {
		return domain.Order{}, err
	}

	saved, err := s.store.Save(ctx, o)
	if err != nil {
		return domain.Order{}, &PersistenceError{Op: "save", OrderID: o.ID, Err: err}
	}
	span.SetAttributes(attribute.String("order.id", saved.ID))
	s.log.Info("order created", "order_id", saved.ID, "total_amount", saved.TotalAmount.StringFixed(2))

	cmds := []domain.Command{
		domain.ReserveStock{OrderID: saved.ID, ProductSKU: saved.ProductSKU, Quantity: saved.ProductQuantity},
		domain.ProcessPayment{
			OrderID:       saved.ID,
			Amount:        saved.TotalAmount,
			CardNumber:    saved.Payment.CardNumber,
			PaymentMethod: saved.Payment.Method,
		},
	}
	var errs []error
	for _, cmd := range cmds {
		if err := s.pub.Publish(ctx, cmd); err != nil {
			s.log.Error("publish failed", "order_id", saved.ID, "command", cmd.RoutingKey(), "err", err)
			errs = append(errs, &PublishError{Command: cmd.RoutingKey(), OrderID: saved.ID, Err: err})
		}
	}
	return saved, errors.Join(errs...)
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := s.store.FindByID(ctx, id)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, err
	}
	if err != nil {
		return domain.Order{}, &PersistenceError{Op: "find", OrderID: id, Err: err}
	}
	return o, nil
}

// DeleteOrder removes the order and its payment details. It is an
// administrative operation and does not touch a running saga.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if _, err := s.GetOrder(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return err
		}
		return &PersistenceError{Op: "delete", OrderID: id, Err: err}
	}
	s.log.Info("order deleted", "order_id", id)
	return nil
}

// ReceiveOrder runs CreateOrder for an order delivered through the broker.
func (s *Service) ReceiveOrder(ctx context.Context, ev domain.OrderReceived) (domain.Order, error) {
	return s.CreateOrder(ctx, CreateOrderRequest{
		ProductSKU:      ev.ProductSKU,
		ProductQuantity: ev.ProductQuantity,
		ClientCPF:       ev.ClientCPF,
		PaymentMethod:   ev.PaymentMethod,
		CardNumber:      ev.CardNumber,
	})
}
