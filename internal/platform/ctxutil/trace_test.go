package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceDataRoundTrip(t *testing.T) {
	var unset context.Context
	assert.Nil(t, GetTraceData(context.Background()))
	assert.Nil(t, GetTraceData(unset))

	ctx := WithTraceData(unset, &TraceData{RequestID: "r1", JobID: "j1"})
	td := GetTraceData(ctx)
	if assert.NotNil(t, td) {
		assert.Equal(t, "r1", td.RequestID)
		assert.Equal(t, "j1", td.JobID)
	}
}

func TestSpanIDs(t *testing.T) {
	traceID, spanID := SpanIDs(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	traceID, spanID = SpanIDs(trace.ContextWithSpanContext(context.Background(), sc))
	assert.Equal(t, sc.TraceID().String(), traceID)
	assert.Equal(t, sc.SpanID().String(), spanID)
}
