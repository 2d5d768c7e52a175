// Package metrics exposes download and API activity as OpenTelemetry instruments
// exported in Prometheus format.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "fecview"

// Metrics records poll outcomes, API round trips, table draws and the number of
// live download jobs. It satisfies the observer interfaces of the downloads,
// fecapi and tables packages.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	polls    metric.Int64Counter
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	draws    metric.Int64Counter

	active atomic.Int64
}

// New creates the meter provider, a private Prometheus registry and the instruments
func New() (*Metrics, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	m := &Metrics{
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	meter := m.provider.Meter(meterName)

	if m.polls, err = meter.Int64Counter("fecview.download.polls",
		metric.WithDescription("Download status polls by outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create poll counter: %w", err)
	}

	if m.requests, err = meter.Int64Counter("fecview.api.requests",
		metric.WithDescription("FEC API round trips by endpoint and outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	if m.latency, err = meter.Float64Histogram("fecview.api.request.duration",
		metric.WithDescription("FEC API round trip latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create latency histogram: %w", err)
	}

	if m.draws, err = meter.Int64Counter("fecview.table.draws",
		metric.WithDescription("Table draws by table and outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create draw counter: %w", err)
	}

	// Read on scrape
	if _, err = meter.Int64ObservableGauge("fecview.downloads.active",
		metric.WithDescription("Download jobs currently tracked"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			obs.Observe(m.active.Load())
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("failed to create active downloads gauge: %w", err)
	}

	return m, nil
}

// Handler serves the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// Shutdown flushes and stops the meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// ObservePoll counts one download status poll
func (m *Metrics) ObservePoll(outcome string) {
	m.polls.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SetActiveDownloads records the number of tracked jobs
func (m *Metrics) SetActiveDownloads(n int) {
	m.active.Store(int64(n))
}

// ObserveRequest counts one API round trip and its latency
func (m *Metrics) ObserveRequest(endpoint string, outcome string, elapsed time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	)
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// ObserveDraw counts one table draw
func (m *Metrics) ObserveDraw(table string, outcome string) {
	m.draws.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("outcome", outcome),
	))
}
