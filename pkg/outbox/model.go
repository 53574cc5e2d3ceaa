package outbox

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	// Type doubles as the destination topic unless the dispatcher maps it.
	Type        string
	Payload     []byte
	Headers     map[string]string
	Traceparent string
	CreatedAt   time.Time
	Status      Status
	RetryCount  int
	LastError   *string
}

// NewEvent encodes payload as JSON and captures the span context of ctx.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	traceparent := carrier.Get(tracing.TraceparentHeader)
	delete(carrier, tracing.TraceparentHeader)

	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       data,
		Headers:       carrier,
		Traceparent:   traceparent,
		CreatedAt:     time.Now().UTC(),
		Status:        StatusPending,
	}, nil
}
