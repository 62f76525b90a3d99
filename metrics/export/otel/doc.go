// Package otel registers OpenTelemetry observable instruments for an
// authcore Engine: one Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket. A single callback reads the
// snapshot on each collection. Callers own the MeterProvider.
package otel
