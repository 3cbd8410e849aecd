// Package otel publishes goTrust engine metrics through an OpenTelemetry
// meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter, a
// tier-labelled risk counter, and an Int64ObservableGauge per latency bucket.
// A single callback reads the engine snapshot on each collection. Callers own
// the MeterProvider.
package otel
