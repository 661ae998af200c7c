package instrumentation

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config holds instrumentation settings.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// DetailedLabels controls whether high-cardinality labels (account
	// hashes) are attached to metrics.
	DetailedLabels bool
}

// DefaultConfig returns the default instrumentation configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "mailagent",
		ServiceVersion: "dev",
	}
}

// Provider owns the meter provider and the Prometheus registry it exports
// into.
type Provider struct {
	registry      *prometheus.Registry
	meterProvider *sdkmetric.MeterProvider
	metrics       *Metrics
}

// NewProvider builds the metric pipeline: Prometheus exporter, otel meter
// provider, and the Metrics recorders.
func NewProvider(cfg Config) (*Provider, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	metrics, err := NewMetrics(meterProvider.Meter(cfg.ServiceName), cfg.DetailedLabels)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &Provider{
		registry:      registry,
		meterProvider: meterProvider,
		metrics:       metrics,
	}, nil
}

// Registry returns the Prometheus registry for serving /metrics.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Metrics returns the metric recorders.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}
