// Package prometheus renders authgate metrics in the Prometheus text
// exposition format without depending on the Prometheus client library.
//
// [NewPrometheusExporter] reads [authgate.Engine.MetricsSnapshot] on every
// scrape; no state is kept between renders.
//
// # What this package must NOT do
//
//   - Register with a global prometheus registry.
//   - Mutate engine state.
package prometheus
