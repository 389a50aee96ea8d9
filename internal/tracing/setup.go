// Package tracing wires the OpenTelemetry SDK's TracerProvider as the
// global tracer for scheduler ticks and worker task invocations. Grounded
// on the teacher's internal/tracing/otelexport exporter: same OTLP/gRPC
// exporter and sdktrace.TracerProvider construction, simplified because
// this domain's spans come from ordinary otel.Tracer(...).Start calls
// (internal/scheduler, internal/worker) rather than the teacher's
// buffered custom SpanData bridge, which has no analogue here.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the OTLP/gRPC exporter.
type Config struct {
	Endpoint    string // OTLP endpoint (e.g. "localhost:4317"); empty disables tracing.
	Insecure    bool
	ServiceName string
}

// Setup installs a TracerProvider as the global otel tracer provider when
// cfg.Endpoint is set, returning a shutdown func that flushes and closes
// the exporter. When cfg.Endpoint is empty, Setup is a no-op and the
// process keeps otel's default no-op tracer.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "stockura-scheduler"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: new otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
