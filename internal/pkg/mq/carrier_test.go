package mq

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderCarrier(t *testing.T) {
	carrier := KafkaHeaderCarrier{{Key: "a", Value: []byte("1")}}

	carrier.Set("b", "2")
	carrier.Set("a", "3")

	assert.Equal(t, "3", carrier.Get("a"))
	assert.Equal(t, "2", carrier.Get("b"))
	assert.Equal(t, "", carrier.Get("missing"))
	assert.ElementsMatch(t, []string{"a", "b"}, carrier.Keys())
}

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	InjectTraceContext(ctx, &headers)
	require.NotEmpty(t, headers)

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
}

func TestHeaderValue(t *testing.T) {
	headers := []kafka.Header{{Key: HeaderMessageTTL, Value: []byte("60000")}}
	assert.Equal(t, "60000", HeaderValue(headers, HeaderMessageTTL))
	assert.Equal(t, "", HeaderValue(headers, HeaderDeadLetterTopic))
}

type recordWriter struct {
	msgs []kafka.Message
}

func (w *recordWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestProduceMessageKeepsHeadersAndInjectsTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	w := &recordWriter{}
	require.NoError(t, ProduceMessage(ctx, w, []byte("k"), []byte("v"),
		kafka.Header{Key: HeaderMessageTTL, Value: []byte("1000")}))

	require.Len(t, w.msgs, 1)
	got := w.msgs[0]
	assert.Equal(t, "k", string(got.Key))
	assert.Equal(t, "1000", HeaderValue(got.Headers, HeaderMessageTTL))
	assert.NotEmpty(t, HeaderValue(got.Headers, "traceparent"))
}
