// Package middleware exposes net/http adapters for the request gate.
//
// # Adapters
//
//   - [Protect] — runs Gate.Check before the wrapped handler and renders
//     403/429 rejections with the standard JSON bodies and rate-limit
//     headers.
//   - [EnsureToken] — issues the CSRF cookie on safe requests that do
//     not carry one yet, so pages always have a token to echo back.
//
// # Architecture boundaries
//
// This package translates gate decisions into HTTP semantics. It does
// NOT implement gating logic itself — all decisions are delegated to
// Gate.Check.
//
// # What this package must NOT do
//
//   - Evaluate windows, compare tokens, or classify routes (the gate
//     owns those).
//   - Swallow a policy's custom RejectionResponder; when one is set it
//     replaces the default 429 rendering entirely.
package middleware
