// Package window implements per-key sliding-window request accounting for
// the gate.
//
// # Window semantics
//
// True sliding windows, not fixed buckets: every admission is recorded as
// a timestamp, and a request is rejected when the trailing window already
// holds the policy budget. The retry hint is the remaining lifetime of
// the oldest in-window admission. Memory per key is bounded by the policy
// budget, since a full window admits nothing new.
//
// Two implementations share the [Store] contract: an in-process map
// guarded by one mutex with a periodic sweeper, and a Redis sorted-set
// store for multi-process deployments where quotas must be shared.
//
// # What this package must NOT do
//
//   - Classify routes or choose policies (the gate does that).
//   - Write HTTP responses or know about net/http.
//   - Be imported outside the reqgate module.
package window
