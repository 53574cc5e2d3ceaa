package tracing

import (
	"context"
	"sort"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceparentHeader is the W3C trace context key. Outbox rows store it in
// their own column, apart from the rest of the carrier.
const TraceparentHeader = "traceparent"

// KafkaHeaders rebuilds message headers from a stored carrier and its
// traceparent, sorted by key.
func KafkaHeaders(carrier map[string]string, traceparent string) []kafka.Header {
	keys := make([]string, 0, len(carrier))
	for k := range carrier {
		if k != TraceparentHeader {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys)+1)
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(carrier[k])})
	}
	if traceparent != "" {
		headers = append(headers, kafka.Header{Key: TraceparentHeader, Value: []byte(traceparent)})
	}
	return headers
}

// InjectKafkaHeaders writes the span context of ctx into headers. Trace keys
// already present are replaced, not duplicated.
func InjectKafkaHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	out := make([]kafka.Header, 0, len(headers)+len(carrier))
	for _, h := range headers {
		if _, ok := carrier[h.Key]; !ok {
			out = append(out, h)
		}
	}
	for _, k := range carrier.Keys() {
		out = append(out, kafka.Header{Key: k, Value: []byte(carrier[k])})
	}
	return out
}

func ExtractKafkaHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
