package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogExporterWritesParentAndAttributes(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	exp := NewLogExporter(zap.New(core))
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	spans := tracetest.SpanStubs{
		{Name: "root"},
		{
			Name:       "child",
			Parent:     parent,
			Attributes: []attribute.KeyValue{attribute.String("crawler.host", "a.test")},
		},
	}.Snapshots()
	require.NoError(t, exp.ExportSpans(context.Background(), spans))

	entries := logs.FilterMessage("span exported").All()
	require.Len(t, entries, 2)
	require.Equal(t, "trace", entries[0].LoggerName)
	require.Equal(t, "root", entries[0].ContextMap()["span"])
	require.NotContains(t, entries[0].ContextMap(), "parent_id")

	child := entries[1].ContextMap()
	require.Equal(t, "child", child["span"])
	require.Equal(t, parent.SpanID().String(), child["parent_id"])
	require.Equal(t, "a.test", child["crawler.host"])
}

func TestLogExporterDropsAfterShutdown(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	exp := NewLogExporter(zap.New(core))
	require.NoError(t, exp.Shutdown(context.Background()))

	spans := tracetest.SpanStubs{{Name: "late"}}.Snapshots()
	require.NoError(t, exp.ExportSpans(context.Background(), spans))
	require.Zero(t, logs.Len())
}

func TestLogExporterStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	exp := NewLogExporter(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	spans := tracetest.SpanStubs{{Name: "x"}}.Snapshots()
	require.ErrorIs(t, exp.ExportSpans(ctx, spans), context.Canceled)
}
