package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics bundles an otel MeterProvider with the Prometheus registry its
// exporter feeds, so task-attempt and sync counters recorded through the
// metric.Meter API land on one classic /metrics endpoint.
type Metrics struct {
	Provider metric.MeterProvider
	Registry *prometheus.Registry
}

// NewMetrics builds a Metrics backed by a fresh Prometheus registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("observability: build prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &Metrics{Provider: provider, Registry: registry}, nil
}

// Handler returns the http.Handler that serves the Prometheus exposition
// format for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
