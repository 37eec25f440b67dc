package telemetry

import (
	"context"
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// LogExporter is a span exporter that logs each finished span.
type LogExporter struct {
	logger  *zap.Logger
	stopped atomic.Bool
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// NewLogExporter logs spans to logger, or discards them when logger is nil.
func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger.Named("trace")}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.stopped.Load() {
		return nil
	}
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		sc := span.SpanContext()
		fields := []zap.Field{
			zap.String("span", span.Name()),
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
			zap.Duration("dur", span.EndTime().Sub(span.StartTime())),
			zap.String("status", span.Status().Code.String()),
		}
		if parent := span.Parent(); parent.IsValid() {
			fields = append(fields, zap.String("parent_id", parent.SpanID().String()))
		}
		for _, kv := range span.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.Debug("span exported", fields...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter. Later exports are dropped.
func (e *LogExporter) Shutdown(context.Context) error {
	e.stopped.Store(true)
	return nil
}
