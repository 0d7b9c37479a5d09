// Package otel publishes engine metrics through an OpenTelemetry [metric.Meter].
//
// [NewExporter] registers one observable counter per engine counter and, for the latency
// histogram, a bucket gauge carrying an "le" attribute plus a count gauge. A single
// callback reads the engine snapshot on every collection. The caller owns the
// MeterProvider.
package otel
