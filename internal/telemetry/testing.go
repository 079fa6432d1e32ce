package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Noop returns a (*Telemetry)(nil)-equivalent tracer/meter pair for tests
// that don't care about spans or metrics.
func Noop() (trace.Tracer, metric.Meter) {
	return tracenoop.NewTracerProvider().Tracer("loam/test"), metricnoop.NewMeterProvider().Meter("loam/test")
}
