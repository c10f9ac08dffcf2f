// Package prometheus exposes authstate counters and latency histograms
// through prometheus/client_golang.
//
// [NewPrometheusExporter] returns a collector bound to its own registry.
// Mount [PrometheusExporter.Handler] or merge [PrometheusExporter.Registry]
// into an existing gatherer. Counters are named authstate_*_total and the
// histograms authstate_*_latency_seconds. Histogram sums are estimated from
// bucket bounds since the engine records bucket counts only.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
