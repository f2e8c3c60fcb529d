// Package telemetry configures OpenTelemetry tracing for the process.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

// Setup installs a global tracer provider exporting to the OTLP/HTTP
// endpoint. Tracing is off when endpoint is empty: the returned Shutdown is
// a no-op and the global provider is left untouched.
func Setup(ctx context.Context, endpoint, serviceName string) (Shutdown, error) {
	noop := func(context.Context) error { return nil }
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := NewProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(serviceResource(serviceName)))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// NewProvider builds an always-sampling tracer provider.
func NewProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}, opts...)...)
}

func serviceResource(serviceName string) *resource.Resource {
	return resource.NewSchemaless(semconv.ServiceName(serviceName))
}
