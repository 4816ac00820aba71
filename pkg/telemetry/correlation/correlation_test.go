package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), " cid-1 ")
	ctx, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "cid-1", cid)
	assert.Equal(t, "cid-1", ExtractCorrelationID(ctx))
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	assert.Len(t, cid, 26)
	assert.Equal(t, cid, ExtractCorrelationID(ctx))
}

func TestContextWithCorrelationIDRejectsOversized(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), strings.Repeat("x", maxIDLength+1))
	assert.Empty(t, ExtractCorrelationID(ctx))
}

func TestEventMetadata(t *testing.T) {
	assert.Empty(t, EventMetadata(context.Background()))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := ContextWithCorrelationID(context.Background(), "cid-2")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))

	meta := EventMetadata(ctx)
	assert.Equal(t, "cid-2", meta["correlation_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", meta["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", meta["span_id"])
}
