// Package otel publishes authstate metrics as OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter.
// Each latency histogram becomes two gauges: <name>_bucket, with one
// cumulative data point per "le" attribute, and <name>_count. A single
// callback reads [authstate.Engine.MetricsSnapshot] per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
