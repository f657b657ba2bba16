// Package observability wires distributed tracing and metrics export for
// the node and hive processes. Every process gets one TracerProvider
// (spans for task attempt execution, hive sync pushes, HTTP requests)
// and one MeterProvider whose counters/histograms are exposed over
// Prometheus at /metrics, selected and configured by TracingConfig.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidrudduck/vk-swarm-sub003/internal/config"
)

// Tracing bundles a configured TracerProvider with its shutdown hook.
type Tracing struct {
	Provider trace.TracerProvider
	Shutdown func(context.Context) error
}

// NewTracing builds a Tracing for cfg.Exporter ("jaeger", "zipkin",
// "otlphttp", or "" to disable tracing). An empty exporter name is the
// common case for local/dev runs and returns a no-op provider rather
// than an error.
func NewTracing(cfg config.TracingConfig) (*Tracing, error) {
	if cfg.Exporter == "" {
		noop := otel.GetTracerProvider()
		return &Tracing{Provider: noop, Shutdown: func(context.Context) error { return nil }}, nil
	}

	exporter, err := buildExporter(cfg)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "vk-swarm"
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Tracing{Provider: tp, Shutdown: tp.Shutdown}, nil
}

func buildExporter(cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "jaeger":
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		if err != nil {
			return nil, fmt.Errorf("observability: build jaeger exporter: %w", err)
		}
		return exp, nil
	case "zipkin":
		exp, err := zipkin.New(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("observability: build zipkin exporter: %w", err)
		}
		return exp, nil
	case "otlphttp":
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		exp, err := otlptracehttp.New(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("observability: build otlphttp exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("observability: unknown tracing exporter %q", cfg.Exporter)
	}
}
