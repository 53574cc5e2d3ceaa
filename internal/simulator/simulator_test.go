package simulator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagadomain "github.com/dmehra2102/Order-Fulfillment-Saga/internal/orchestrator/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/inbound"
)

type recorder struct{ sent []domain.Command }

func (r *recorder) Publish(ctx context.Context, msg domain.Command) error {
	r.sent = append(r.sent, msg)
	return nil
}

func newService(pub Publisher) *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), pub, 10, decimal.NewFromInt(10000))
}

func TestStockDecision(t *testing.T) {
	rec := &recorder{}
	routes := newService(rec).Routes()

	handle := routes[domain.RouteReserveStock]
	require.NoError(t, handle(context.Background(), []byte(`{"orderId":"o-1","productSku":"BOLA-12345","quantity":10}`)))
	require.NoError(t, handle(context.Background(), []byte(`{"orderId":"o-2","productSku":"BOLA-12345","quantity":11}`)))

	assert.Equal(t, []domain.Command{
		sagadomain.StockOutcome{OrderID: "o-1", Success: true},
		sagadomain.StockOutcome{OrderID: "o-2", Success: false},
	}, rec.sent)
	assert.Equal(t, domain.RouteStockReserved, rec.sent[0].RoutingKey())
}

func TestPaymentDecision(t *testing.T) {
	rec := &recorder{}
	routes := newService(rec).Routes()

	handle := routes[domain.RouteProcessPayment]
	require.NoError(t, handle(context.Background(), []byte(`{"orderId":"o-1","amount":"1000.00","cardNumber":"4111","paymentMethod":"CREDIT_CARD"}`)))
	require.NoError(t, handle(context.Background(), []byte(`{"orderId":"o-2","amount":"10000.01","cardNumber":"4111","paymentMethod":"CREDIT_CARD"}`)))

	assert.Equal(t, []domain.Command{
		sagadomain.PaymentOutcome{OrderID: "o-1", Success: true},
		sagadomain.PaymentOutcome{OrderID: "o-2", Success: false},
	}, rec.sent)
	assert.Equal(t, domain.RoutePaymentProcessed, rec.sent[1].RoutingKey())
}

func TestCompensationsAreAcknowledged(t *testing.T) {
	rec := &recorder{}
	routes := newService(rec).Routes()

	require.NoError(t, routes[domain.RouteReleaseStock](context.Background(), []byte(`{"orderId":"o-1","productSku":"BOLA-12345","quantity":3}`)))
	require.NoError(t, routes[domain.RouteRefundPayment](context.Background(), []byte(`{"orderId":"o-1","amount":"300.00"}`)))
	assert.Empty(t, rec.sent)
}

func TestMalformedCommand(t *testing.T) {
	routes := newService(&recorder{}).Routes()
	for key, handle := range routes {
		err := handle(context.Background(), []byte(`not json`))
		assert.True(t, errors.Is(err, inbound.ErrMalformed), key)
	}
}
