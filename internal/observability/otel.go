// Package observability wires OpenTelemetry tracing for the daemon.
//
// Tracing is opt-in: with no endpoint configured the global no-op tracer
// stays in place and request spans cost nothing. When an endpoint is set,
// spans are shipped over OTLP/HTTP to a local collector (a Datadog Agent,
// Grafana Alloy, or the otel-collector all speak it on localhost:4318).
//
// Tracing never takes the daemon down. An exporter that cannot be built
// logs a warning and leaves the no-op provider installed.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName tags every exported span.
const ServiceName = "tapd"

// Setup installs the global tracer provider and returns a shutdown
// function that flushes pending spans. endpoint is a host:port OTLP/HTTP
// collector address; empty means tracing stays disabled. version is
// attached to the trace resource so deployments can be told apart.
//
// Setup never fails the caller: every degraded path returns a usable
// no-op shutdown.
func Setup(ctx context.Context, endpoint, version string, logger *slog.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if endpoint == "" {
		return noop, nil
	}

	// The collector is expected on localhost, where TLS buys nothing.
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("trace exporter setup failed, tracing disabled",
			"endpoint", endpoint,
			"error", err)
		return noop, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", ServiceName)

	return provider.Shutdown, nil
}
