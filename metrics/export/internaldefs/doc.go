// Package internaldefs holds the metric names and bucket bounds shared by the Prometheus
// and OpenTelemetry exporters, so both publish identical series.
//
// Names are prefixed jwtauth_ and counters end in _total. The package performs no I/O.
package internaldefs
