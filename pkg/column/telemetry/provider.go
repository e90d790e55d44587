package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// NewStdoutProvider builds a [metric.MeterProvider] that periodically
// writes instrument readings to stdout as JSON, for local/dev use by
// cmd/coldb's --metrics flag rather than a real collector endpoint.
func NewStdoutProvider(interval time.Duration) (*metric.MeterProvider, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
	)

	return provider, nil
}

// Shutdown flushes and stops provider, returning any error the flush or
// shutdown reports.
func Shutdown(ctx context.Context, provider *metric.MeterProvider) error {
	return provider.Shutdown(ctx)
}
