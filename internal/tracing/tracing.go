// Package tracing bootstraps the OpenTelemetry TracerProvider that backs
// the Metrics package's exemplars: every chunk/cipher operation recorded
// while a span is active in ctx gets that span's trace ID attached to its
// Prometheus sample, letting an operator jump from a metrics spike straight
// to the trace that produced it.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/kenneth/discord-file-vault/internal/config"
	"github.com/kenneth/discord-file-vault/internal/errs"
)

// Shutdown flushes and stops the TracerProvider installed by Setup.
type Shutdown func(ctx context.Context) error

// Setup installs a global TracerProvider built from cfg and returns a
// Shutdown to call on process exit. Exporter "none" (the default) installs
// no provider at all, leaving exemplar collection a no-op.
func Setup(ctx context.Context, cfg config.TracingConfig) (Shutdown, error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String(cfg.ServiceName),
	))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, "failed to build tracing resource", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

func buildExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "jaeger":
		if cfg.Endpoint == "" {
			return nil, errs.New(errs.KindConfigInvalid, "tracing: jaeger exporter requires tracing.endpoint")
		}
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	case "otlp":
		if cfg.Endpoint == "" {
			return nil, errs.New(errs.KindConfigInvalid, "tracing: otlp exporter requires tracing.endpoint")
		}
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, errs.New(errs.KindConfigInvalid, fmt.Sprintf("tracing: unknown exporter %q", cfg.Exporter))
	}
}
