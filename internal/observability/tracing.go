// Package observability sets up OpenTelemetry tracing. Spans are
// exported over OTLP/HTTP to a local collector, which handles
// buffering, authentication, and forwarding to whatever backend is
// configured.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/evscmms/assistant/internal/log"
)

// DefaultEndpoint is the conventional local OTLP HTTP endpoint.
const DefaultEndpoint = "localhost:4318"

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP collector address (default: localhost:4318).
	Endpoint string
	// ServiceName tags exported spans (default: assistant).
	ServiceName string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	Logger      log.Logger
}

// Setup installs a global tracer provider exporting to the collector.
// Returns a shutdown function that flushes pending spans. Export
// failures degrade to a no-op provider rather than failing startup.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "assistant"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled", "endpoint", endpoint, "service", serviceName, "environment", cfg.Environment)
	return provider.Shutdown, nil
}
