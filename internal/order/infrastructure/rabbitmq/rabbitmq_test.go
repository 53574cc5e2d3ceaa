package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/inbound"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/idempotency"
)

type publishedMessage struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu        sync.Mutex
	published []publishedMessage
	queues    map[string]chan amqp.Delivery
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	ch, ok := c.queues[queue]
	if !ok {
		return nil, errors.New("no such queue")
	}
	return ch, nil
}

type acks struct {
	mu       sync.Mutex
	acked    []uint64
	nacked   []uint64
	requeued []uint64
}

func (a *acks) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *acks) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeued = append(a.requeued, tag)
		return nil
	}
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *acks) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func TestPublisherSendsCommandToExchange(t *testing.T) {
	ch := &fakeChannel{}
	pub := NewPublisher(ch)

	cmd := domain.ReleaseStock{OrderID: "o-1", ProductSKU: "BOLA-12345", Quantity: 3}
	require.NoError(t, pub.Publish(context.Background(), cmd))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, ExchangeName, got.exchange)
	assert.Equal(t, domain.RouteReleaseStock, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.NotEmpty(t, got.msg.MessageId)

	var decoded domain.ReleaseStock
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, cmd, decoded)
}

func TestQueuesCoverEveryRoute(t *testing.T) {
	routes := inbound.Routes(nil, nil)
	for _, topic := range inbound.Topics(routes) {
		assert.Contains(t, Queues, topic)
	}
	assert.Contains(t, Queues, domain.RouteOrderReceived)
}

func TestConsumerAcksHandledAndNacksFailed(t *testing.T) {
	stock := make(chan amqp.Delivery, 2)
	ch := &fakeChannel{queues: map[string]chan amqp.Delivery{domain.RouteStockReserved: stock}}
	a := &acks{}

	var handled []string
	routes := map[string]inbound.Handler{
		domain.RouteStockReserved: func(ctx context.Context, body []byte) error {
			handled = append(handled, string(body))
			if string(body) == "bad" {
				return inbound.ErrMalformed
			}
			return nil
		},
	}

	stock <- amqp.Delivery{Acknowledger: a, DeliveryTag: 1, Body: []byte("good")}
	stock <- amqp.Delivery{Acknowledger: a, DeliveryTag: 2, Body: []byte("bad")}
	close(stock)

	c := NewConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), ch, routes, nil, WithRetry(inbound.RetryPolicy{Attempts: 3, Delay: time.Millisecond}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, []string{"good", "bad"}, handled)
	assert.Equal(t, []uint64{1}, a.acked)
	assert.Equal(t, []uint64{2}, a.nacked)
	assert.Empty(t, a.requeued)
}

func TestConsumerRetriesBeforeRejecting(t *testing.T) {
	stock := make(chan amqp.Delivery, 1)
	ch := &fakeChannel{queues: map[string]chan amqp.Delivery{domain.RouteStockReserved: stock}}
	a := &acks{}

	calls := 0
	routes := map[string]inbound.Handler{
		domain.RouteStockReserved: func(ctx context.Context, body []byte) error {
			calls++
			return errors.New("connection reset")
		},
	}
	stock <- amqp.Delivery{Acknowledger: a, DeliveryTag: 3, Body: []byte(`{}`)}
	close(stock)

	c := NewConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), ch, routes, nil, WithRetry(inbound.RetryPolicy{Attempts: 3, Delay: time.Millisecond}))
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 3, calls)
	assert.Equal(t, []uint64{3}, a.nacked)
}

func TestConsumerRequeuesOnShutdown(t *testing.T) {
	stock := make(chan amqp.Delivery, 1)
	ch := &fakeChannel{queues: map[string]chan amqp.Delivery{domain.RouteStockReserved: stock}}
	a := &acks{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	routes := map[string]inbound.Handler{
		domain.RouteStockReserved: func(ctx context.Context, body []byte) error {
			cancel()
			return ctx.Err()
		},
	}
	stock <- amqp.Delivery{Acknowledger: a, DeliveryTag: 5, Body: []byte(`{}`)}

	c := NewConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), ch, routes, nil, WithRetry(inbound.RetryPolicy{Attempts: 3, Delay: time.Millisecond}))
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, []uint64{5}, a.requeued)
	assert.Empty(t, a.nacked)
}

func TestConsumerSkipsDuplicateDelivery(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	idem := idempotency.NewStore(rdb, time.Hour)
	key := idem.DeliveryKey(domain.RoutePaymentProcessed, "m-1")
	mock.ExpectSetNX(key, "1", time.Hour).SetVal(false)

	payments := make(chan amqp.Delivery, 1)
	ch := &fakeChannel{queues: map[string]chan amqp.Delivery{domain.RoutePaymentProcessed: payments}}
	a := &acks{}

	calls := 0
	routes := map[string]inbound.Handler{
		domain.RoutePaymentProcessed: func(ctx context.Context, body []byte) error {
			calls++
			return nil
		},
	}
	payments <- amqp.Delivery{Acknowledger: a, DeliveryTag: 7, MessageId: "m-1", Body: []byte(`{}`)}
	close(payments)

	c := NewConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), ch, routes, idem)
	require.NoError(t, c.Run(context.Background()))

	assert.Zero(t, calls)
	assert.Equal(t, []uint64{7}, a.acked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumerFailsWhenQueueMissing(t *testing.T) {
	ch := &fakeChannel{queues: map[string]chan amqp.Delivery{}}
	routes := map[string]inbound.Handler{
		"unknown": func(ctx context.Context, body []byte) error { return nil },
	}
	c := NewConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), ch, routes, nil)
	assert.Error(t, c.Run(context.Background()))
}
