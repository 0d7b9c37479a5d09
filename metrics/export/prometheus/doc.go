// Package prometheus exposes engine metrics as a client_golang Collector.
//
// [NewExporter] wraps an engine; register the result with any prometheus.Registerer or
// mount [Exporter.Handler]. Counters are named jwtauth_*_total and the single histogram is
// jwtauth_validate_latency_seconds. The exporter never mutates engine state.
package prometheus
