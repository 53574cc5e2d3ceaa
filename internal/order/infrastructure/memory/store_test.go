package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

func newOrder(t *testing.T, id string) domain.Order {
	t.Helper()
	o, err := domain.NewOrder(id, "BOLA-12345", 1, "12345678901", domain.CreditCard, "4111", decimal.NewFromInt(10))
	require.NoError(t, err)
	return o
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	saved, err := s.Save(ctx, newOrder(t, "a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	_, err = s.Save(ctx, newOrder(t, "a"))
	require.Error(t, err)

	updated, err := s.Update(ctx, saved.WithStockReserved(true))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	got, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.StockReserved)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.FindByID(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a"), domain.ErrOrderNotFound)
}

func TestStoreRejectsStaleUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	saved, err := s.Save(ctx, newOrder(t, "a"))
	require.NoError(t, err)

	_, err = s.Update(ctx, saved.WithStockReserved(true))
	require.NoError(t, err)

	_, err = s.Update(ctx, saved.WithPaymentStatus(domain.PaymentApproved))
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = s.Update(ctx, newOrder(t, "missing"))
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
