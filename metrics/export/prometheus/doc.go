// Package prometheus renders gate metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [reqgate.Gate] and exposes an
// http.Handler that renders all gate counters and the check-latency
// histogram. Counter names are prefixed reqgate_*_total; the histogram is
// reqgate_check_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount
//     the Handler.
//   - Mutate gate state.
package prometheus
