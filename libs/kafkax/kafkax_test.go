package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Key: []byte("k1"), Topic: "payments.appointment.paid.v1"})
	if meta.EventID != "k1" || meta.EventType != "payments.appointment.paid.v1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	msg := kafka.Message{Key: []byte("k1"), Headers: MetaHeaders(EventMeta{EventID: "e1", EventType: "booking.appointment.paid.v1"})}
	meta = ExtractEventMeta(msg)
	if meta.EventID != "e1" || meta.EventType != "booking.appointment.paid.v1" {
		t.Fatalf("unexpected meta from headers: %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, MetaHeaders(EventMeta{EventID: "e1"}))
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("traceparent not injected: %+v", headers)
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != traceID {
		t.Fatalf("trace id mismatch: %s", got.TraceID())
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092")
	if len(got) != 2 || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers: %v", got)
	}
}
