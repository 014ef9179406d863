// Package prometheus adapts campusauth counters to the Prometheus client
// library.
//
// [Collector] implements prometheus.Collector and reads an engine snapshot on
// every scrape. Register it on a dedicated registry and serve that registry
// with [Handler]; nothing is registered globally.
//
// # What this package must NOT do
//
//   - Register in prometheus.DefaultRegisterer.
//   - Mutate engine state.
package prometheus
