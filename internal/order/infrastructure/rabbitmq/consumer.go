package rabbitmq

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/inbound"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/idempotency"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

type ConsumeChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Consumer acknowledges manually: handled deliveries are acked, ones that
// still fail after the retry policy are rejected without requeue so the
// broker moves them to the dead-letter queue. Deliveries interrupted by
// shutdown are requeued.
type Consumer struct {
	log    *slog.Logger
	ch     ConsumeChannel
	routes map[string]inbound.Handler
	idem   *idempotency.Store
	retry  inbound.RetryPolicy
	tracer trace.Tracer
}

type Option func(*Consumer)

func WithRetry(p inbound.RetryPolicy) Option {
	return func(c *Consumer) { c.retry = p }
}

func NewConsumer(log *slog.Logger, ch ConsumeChannel, routes map[string]inbound.Handler, idem *idempotency.Store, opts ...Option) *Consumer {
	c := &Consumer{
		log:    log,
		ch:     ch,
		routes: routes,
		idem:   idem,
		retry:  inbound.DefaultRetryPolicy(),
		tracer: otel.Tracer("order-consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for queue, handle := range c.routes {
		queue, handle := queue, handle
		deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return err
		}
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						c.log.Warn("delivery channel closed", "queue", queue)
						return nil
					}
					c.process(ctx, queue, handle, d)
				}
			}
		})
	}
	return g.Wait()
}

func (c *Consumer) process(ctx context.Context, queue string, handle inbound.Handler, d amqp.Delivery) {
	key := ""
	if c.idem != nil && d.MessageId != "" {
		key = c.idem.DeliveryKey(queue, d.MessageId)
		seen, err := c.idem.Seen(ctx, key)
		switch {
		case err != nil:
			c.log.Warn("idempotency check failed, handling anyway", "key", key, "err", err)
			key = ""
		case seen:
			c.log.Info("duplicate delivery skipped", "key", key)
			c.ack(d)
			return
		}
	}

	msgCtx := tracing.ExtractAMQPHeaders(ctx, d.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume "+queue)
	defer span.End()

	attempts, err := c.retry.Handle(msgCtx, handle, d.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if key != "" {
			if ferr := c.idem.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				c.log.Warn("idempotency release failed", "key", key, "err", ferr)
			}
		}
		requeue := ctx.Err() != nil
		if requeue {
			c.log.Warn("handling interrupted by shutdown, requeueing", "queue", queue, "message_id", d.MessageId, "err", err)
		} else {
			c.log.Error("delivery handling failed", "queue", queue, "message_id", d.MessageId, "attempts", attempts, "err", err)
		}
		if err := d.Nack(false, requeue); err != nil {
			c.log.Error("nack failed", "queue", queue, "err", err)
		}
		return
	}
	c.log.Info("delivery handled", "queue", queue, "message_id", d.MessageId)
	c.ack(d)
}

func (c *Consumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		c.log.Error("ack failed", "delivery_tag", d.DeliveryTag, "err", err)
	}
}
