package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/sifterhq/sifter"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Detection metrics
	DetectionBatchesTotal  metric.Int64Counter
	DetectionTasksTotal    metric.Int64Counter
	DetectionTaskFailures  metric.Int64Counter
	DetectionBatchDuration metric.Float64Histogram

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	RateLimitedTotal    metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.DetectionBatchesTotal, _ = meter.Int64Counter(
		"sifter.detection.batches.total",
		metric.WithDescription("Total number of detection batches processed"),
		metric.WithUnit("{batch}"),
	)

	m.DetectionTasksTotal, _ = meter.Int64Counter(
		"sifter.detection.tasks.total",
		metric.WithDescription("Total number of detection sub-tasks executed"),
		metric.WithUnit("{task}"),
	)

	m.DetectionTaskFailures, _ = meter.Int64Counter(
		"sifter.detection.tasks.failures.total",
		metric.WithDescription("Total number of detection sub-tasks that failed"),
		metric.WithUnit("{task}"),
	)

	m.DetectionBatchDuration, _ = meter.Float64Histogram(
		"sifter.detection.batch.duration",
		metric.WithDescription("Duration of detection batches end to end"),
		metric.WithUnit("ms"),
	)

	m.HTTPRequestsTotal, _ = meter.Int64Counter(
		"sifter.http.requests.total",
		metric.WithDescription("Total number of HTTP requests served"),
		metric.WithUnit("{request}"),
	)

	m.HTTPRequestDuration, _ = meter.Float64Histogram(
		"sifter.http.request.duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("ms"),
	)

	m.RateLimitedTotal, _ = meter.Int64Counter(
		"sifter.http.rate_limited.total",
		metric.WithDescription("Total number of requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)

	return m
}
