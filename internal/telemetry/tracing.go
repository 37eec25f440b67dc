// Package telemetry installs the OpenTelemetry tracer provider and
// propagator used by the crawler's fetch spans and the Pub/Sub notice.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"
)

// Exporter names accepted by tracing.exporter.
const (
	// ExporterNone records spans for propagation but ships them nowhere.
	ExporterNone = "none"
	// ExporterLog writes finished spans to the zap logger at Debug.
	ExporterLog = "log"
)

// DefaultServiceName labels spans when no name is configured.
const DefaultServiceName = "hostcrawl"

// Config selects how spans are sampled and exported.
type Config struct {
	ServiceName string
	Exporter    string
	// SampleRatio is the fraction of root traces kept, from 0 to 1.
	SampleRatio float64
	Logger      *zap.Logger
}

// InitTracerProvider builds a tracer provider for cfg and installs it, with
// the W3C trace context and baggage propagators, as the global default.
// Callers own the returned provider and must Shutdown it.
func InitTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("sample ratio must be within [0, 1], got %v", cfg.SampleRatio)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	switch cfg.Exporter {
	case ExporterNone, "":
	case ExporterLog:
		opts = append(opts, sdktrace.WithBatcher(NewLogExporter(logger)))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	logger.Info("tracer provider installed",
		zap.String("service", cfg.ServiceName),
		zap.String("exporter", cfg.Exporter),
		zap.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp, nil
}
