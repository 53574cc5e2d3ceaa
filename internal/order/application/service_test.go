package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/memory"
)

type fixedPrices map[string]decimal.Decimal

func (p fixedPrices) UnitPrice(ctx context.Context, sku string) (decimal.Decimal, error) {
	price, ok := p[sku]
	if !ok {
		return decimal.Zero, domain.ErrProductNotFound
	}
	return price, nil
}

type failingPrices struct{}

func (failingPrices) UnitPrice(ctx context.Context, sku string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("catalog unavailable")
}

type recordingPublisher struct {
	mu     sync.Mutex
	cmds   []domain.Command
	failOn map[string]bool
}

func (p *recordingPublisher) Publish(ctx context.Context, cmd domain.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[cmd.RoutingKey()] {
		return errors.New("broker unavailable")
	}
	p.cmds = append(p.cmds, cmd)
	return nil
}

type brokenStore struct{ *memory.Store }

func (brokenStore) Save(ctx context.Context, o domain.Order) (domain.Order, error) {
	return domain.Order{}, errors.New("connection reset")
}

var prices = fixedPrices{"BOLA-12345": decimal.RequireFromString("100.00")}

func validRequest() application.CreateOrderRequest {
	return application.CreateOrderRequest{
		ProductSKU:      "BOLA-12345",
		ProductQuantity: 10,
		ClientCPF:       "12345678901",
		PaymentMethod:   "CREDIT_CARD",
		CardNumber:      "4111111111111111",
	}
}

func newService(store application.OrderStore, pub application.EventPublisher, p application.PriceProvider) *application.Service {
	return application.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store, pub, p)
}

func TestCreateOrder(t *testing.T) {
	store := memory.NewStore()
	pub := &recordingPublisher{}
	svc := newService(store, pub, prices)

	o, err := svc.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, domain.StatusOpen, o.Status)
	assert.Equal(t, domain.PaymentPending, o.Payment.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("1000.00")))

	stored, err := store.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, stored)

	require.Len(t, pub.cmds, 2)
	assert.Equal(t, domain.ReserveStock{OrderID: o.ID, ProductSKU: "BOLA-12345", Quantity: 10}, pub.cmds[0])
	payment, ok := pub.cmds[1].(domain.ProcessPayment)
	require.True(t, ok)
	assert.Equal(t, o.ID, payment.OrderID)
	assert.True(t, payment.Amount.Equal(o.TotalAmount))
	assert.Equal(t, "4111111111111111", payment.CardNumber)
	assert.Equal(t, domain.CreditCard, payment.PaymentMethod)
}

func TestCreateOrderRejectsInvalidFields(t *testing.T) {
	store := memory.NewStore()
	pub := &recordingPublisher{}
	svc := newService(store, pub, fixedPrices{"bad": decimal.NewFromInt(1)})

	req := validRequest()
	req.ProductSKU = "bad"
	req.ClientCPF = "1"
	req.ProductQuantity = 0

	_, err := svc.CreateOrder(context.Background(), req)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Messages, 3)
	assert.Empty(t, pub.cmds)
}

func TestCreateOrderRejectsUnknownPaymentMethod(t *testing.T) {
	svc := newService(memory.NewStore(), &recordingPublisher{}, prices)

	req := validRequest()
	req.PaymentMethod = "PIX"
	_, err := svc.CreateOrder(context.Background(), req)

	require.EqualError(t, err, "The payment method=[PIX] is invalid")
}

func TestCreateOrderProductNotFound(t *testing.T) {
	svc := newService(memory.NewStore(), &recordingPublisher{}, prices)

	req := validRequest()
	req.ProductSKU = "UNKNOWN-1"
	_, err := svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	svc = newService(memory.NewStore(), &recordingPublisher{}, failingPrices{})
	_, err = svc.CreateOrder(context.Background(), validRequest())
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCreateOrderPersistenceFailure(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(brokenStore{memory.NewStore()}, pub, prices)

	_, err := svc.CreateOrder(context.Background(), validRequest())

	var perr *application.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "save", perr.Op)
	assert.Empty(t, pub.cmds)
}

func TestCreateOrderPartialPublishFailure(t *testing.T) {
	store := memory.NewStore()
	pub := &recordingPublisher{failOn: map[string]bool{domain.RouteProcessPayment: true}}
	svc := newService(store, pub, prices)

	o, err := svc.CreateOrder(context.Background(), validRequest())

	var perr *application.PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.RouteProcessPayment, perr.Command)
	assert.Equal(t, o.ID, perr.OrderID)

	var persistence *application.PersistenceError
	assert.False(t, errors.As(err, &persistence))

	_, err = store.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, pub.cmds, 1)
	assert.Equal(t, domain.RouteReserveStock, pub.cmds[0].RoutingKey())
}

func TestGetAndDeleteOrder(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, &recordingPublisher{}, prices)

	o, err := svc.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	require.NoError(t, svc.DeleteOrder(context.Background(), o.ID))

	_, err = svc.GetOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.ErrorIs(t, svc.DeleteOrder(context.Background(), o.ID), domain.ErrOrderNotFound)
}

func TestReceiveOrder(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(memory.NewStore(), pub, prices)

	o, err := svc.ReceiveOrder(context.Background(), domain.OrderReceived{
		ProductSKU:      "BOLA-12345",
		ProductQuantity: 2,
		ClientCPF:       "12345678901",
		PaymentMethod:   "debit_card",
		CardNumber:      "5555",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DebitCard, o.Payment.Method)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("200")))
	assert.Len(t, pub.cmds, 2)
}
