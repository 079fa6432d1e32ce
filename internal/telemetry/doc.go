// Package telemetry bootstraps an OpenTelemetry tracer/meter pair for
// loam. It wires the SDK but no exporter, and it hands out only Tracer
// and Meter, not the providers, so nothing recorded through it is
// exported. This mirrors the teacher's graceful-degradation telemetry
// package, trimmed to the bootstrap this module actually needs.
package telemetry
