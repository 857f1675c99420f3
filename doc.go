// Package reqgate provides a request-security gate that sits in front of
// business handlers: a multi-tier sliding-window rate limiter keyed by a
// client fingerprint, and a double-submit-cookie CSRF guard with
// constant-time token verification.
//
// The package is designed for concurrent server workloads: Gate methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// reqgate is the public surface. It exposes [Gate], [Builder], [Config], and
// value types (Decision, MetricsSnapshot, etc.). The sliding-window
// bookkeeping lives under internal/window and is never exported; the CSRF
// token manager lives in the csrf sub-package and can be used standalone.
// HTTP translation (status codes, JSON bodies, rate-limit headers) lives in
// the middleware sub-package.
//
// # What this package must NOT do
//
//   - Expose Redis clients, window records, or store internals in its public
//     API.
//   - Perform I/O during construction (Builder is allocation-only until
//     Build; the in-process store does no I/O at all).
//   - Write HTTP responses. [Gate.Check] returns a [Decision]; rendering
//     rejections belongs to middleware or a caller-supplied
//     [RejectionResponder].
//
// # Performance contract
//
// Check is the hot path. With the in-process store it takes one mutex
// acquisition and no allocations beyond the returned Decision; with the
// Redis store it is allowed two pipelined round-trips per call.
package reqgate
