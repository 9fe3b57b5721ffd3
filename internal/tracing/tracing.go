// Package tracing wires the OpenTelemetry SDK behind a small facade.
// Until Init installs a real provider every span is a cheap no-op, so
// instrumented code never has to check whether tracing is on.
package tracing

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Options selects the exporter target and the sampling rate.
type Options struct {
	Enabled    bool
	Endpoint   string  // OTLP HTTP collector as host:port, no scheme
	SampleRate float64 // fraction of traces kept, (0, 1]
}

var tracer trace.Tracer

func noopShutdown(context.Context) error { return nil }

// Init installs the OTLP trace provider and returns its shutdown
// function. When opts.Enabled is false the global no-op provider stays
// in place and the returned shutdown does nothing.
func Init(serviceName string, opts Options) (func(context.Context) error, error) {
	if !opts.Enabled {
		return noopShutdown, nil
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 0.1
	}

	ctx := context.Background()
	// WithInsecure keeps the exporter on plain HTTP; the endpoint is
	// host:port without a scheme.
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(serviceVersion()),
	))
	if err != nil {
		return nil, fmt.Errorf("describing service resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRate)),
	)
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(serviceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return provider.Shutdown(ctx)
	}, nil
}

func serviceVersion() string {
	if v := os.Getenv("SERVICE_VERSION"); v != "" {
		return v
	}
	return "dev"
}

// StartSpan opens a span on the installed tracer, or on the global
// no-op tracer before Init has run.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return otel.Tracer("networkviewer").Start(ctx, name, opts...)
	}
	return tracer.Start(ctx, name, opts...)
}
