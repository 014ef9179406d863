// Package otel publishes campusauth counters through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter. The latency histogram is
// flattened into one cumulative gauge per bucket plus count and sum gauges. A
// single registered callback reads the engine snapshot per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
