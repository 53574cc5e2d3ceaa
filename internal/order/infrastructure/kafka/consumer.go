package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/inbound"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/idempotency"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/outbox"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

const dlqSuffix = ".dlq"

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewReader(brokers []string, group string, topics []string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		GroupTopics: topics,
	})
}

// Consumer feeds every fetched message to the handler registered for its
// topic. A message whose handler still fails after the retry policy is
// copied to <topic>.dlq with the error attached, then committed.
type Consumer struct {
	log    *slog.Logger
	reader Reader
	routes map[string]inbound.Handler
	idem   *idempotency.Store
	dlq    outbox.Producer
	retry  inbound.RetryPolicy
	tracer trace.Tracer
}

type Option func(*Consumer)

func WithRetry(p inbound.RetryPolicy) Option {
	return func(c *Consumer) { c.retry = p }
}

func NewConsumer(log *slog.Logger, reader Reader, routes map[string]inbound.Handler, idem *idempotency.Store, dlq outbox.Producer, opts ...Option) *Consumer {
	c := &Consumer{
		log:    log,
		reader: reader,
		routes: routes,
		idem:   idem,
		dlq:    dlq,
		retry:  inbound.DefaultRetryPolicy(),
		tracer: otel.Tracer("order-consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := c.process(ctx, msg); err != nil {
			return err
		}
	}
}

// process returns an error only when the message could not be committed or
// dead-lettered; handler failures are absorbed by the dead-letter topic.
// A failure during shutdown leaves the message uncommitted for redelivery.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	key := ""
	if c.idem != nil {
		key = c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		switch {
		case err != nil:
			c.log.Warn("idempotency check failed, handling anyway", "key", key, "err", err)
			key = ""
		case seen:
			c.log.Info("duplicate message skipped", "key", key)
			return c.reader.CommitMessages(ctx, msg)
		}
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume "+msg.Topic, trace.WithAttributes(
		attribute.String("messaging.destination", msg.Topic),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	))
	defer span.End()

	handle, ok := c.routes[msg.Topic]
	if !ok {
		c.log.Warn("no handler for topic", "topic", msg.Topic)
		return c.reader.CommitMessages(ctx, msg)
	}

	attempts, err := c.retry.Handle(msgCtx, handle, msg.Value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if key != "" {
			if ferr := c.idem.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				c.log.Warn("idempotency release failed", "key", key, "err", ferr)
			}
		}
		if ctx.Err() != nil {
			c.log.Warn("handling interrupted by shutdown, leaving message uncommitted", "topic", msg.Topic, "offset", msg.Offset, "err", err)
			return nil
		}
		c.log.Error("message handling failed", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset, "attempts", attempts, "err", err)
		if err := c.deadLetter(msgCtx, msg, err); err != nil {
			return err
		}
	} else {
		c.log.Info("message handled", "topic", msg.Topic, "key", string(msg.Key))
	}
	return c.reader.CommitMessages(ctx, msg)
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers, kafka.Header{Key: "error", Value: []byte(cause.Error())})
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic + dlqSuffix,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		c.log.Error("dead-letter write failed", "topic", msg.Topic, "err", err)
	}
	return err
}
