package outbox

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher writes outbox events to Kafka. The topic of an event is
// resolved from its type.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topicOf  func(eventType string) string
}

// NewDispatcher returns a dispatcher publishing each event to the topic named
// by its type. A non-nil topicOf overrides the mapping.
func NewDispatcher(log *slog.Logger, producer Producer, topicOf func(eventType string) string) *Dispatcher {
	if topicOf == nil {
		topicOf = func(eventType string) string { return eventType }
	}
	return &Dispatcher{log: log, producer: producer, topicOf: topicOf}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	msg := d.message(event)
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "topic", msg.Topic, "err", err)
		return err
	}
	d.log.Info("outbox dispatched", "event_id", event.ID, "type", event.Type, "aggregate_id", event.AggregateID)
	return nil
}

func (d *Dispatcher) message(event Event) kafka.Message {
	headers := tracing.KafkaHeaders(event.Headers, event.Traceparent)
	headers = append(headers, kafka.Header{Key: "event_type", Value: []byte(event.Type)})

	return kafka.Message{
		Topic:   d.topicOf(event.Type),
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
}
