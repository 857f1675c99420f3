package reqgate

import (
	"net/http"
	"time"
)

// PolicyClass names one of the gate's fixed limiter tiers. The zero value
// means "no policy matched" and the request is not rate limited.
type PolicyClass string

const (
	// ClassNone marks requests that matched no routing rule.
	ClassNone PolicyClass = ""
	// ClassAuth covers authentication endpoints (default 5 requests / 15 min).
	ClassAuth PolicyClass = "auth"
	// ClassWrite covers state-changing methods (default 30 requests / min).
	ClassWrite PolicyClass = "write"
	// ClassRead covers safe reads (default 100 requests / min).
	ClassRead PolicyClass = "read"
	// ClassSensitive covers membership, invite, and deletion routes
	// (default 10 requests / hour).
	ClassSensitive PolicyClass = "sensitive"
	// ClassSearch covers search routes (default 50 requests / min).
	ClassSearch PolicyClass = "search"
)

// Reason explains why a [Decision] denied a request.
type Reason uint8

const (
	// ReasonNone means the request was admitted.
	ReasonNone Reason = iota
	// ReasonCSRF means CSRF verification failed on an unsafe method.
	// No rate-limit quota was spent for the request.
	ReasonCSRF
	// ReasonThrottled means the gate-wide throughput throttle rejected
	// the request before any policy lookup.
	ReasonThrottled
	// ReasonRateLimited means the matched policy's window was full.
	ReasonRateLimited
	// ReasonStoreUnavailable means the shared window store failed and
	// Config.Store.FailOpen is disabled, so the request was rejected
	// without a quota verdict.
	ReasonStoreUnavailable
)

// KeyResolver derives the bucketing key for a request. The default
// implementation composes a best-effort client IP with a truncated
// user agent; see [ClientKeyFromHeaders]. A resolver must always return a
// non-empty key and must not inspect the request body.
type KeyResolver interface {
	ClientKey(r *http.Request) string
}

// RejectionResponder renders a rate-limit rejection for one policy,
// overriding the middleware's default 429 response. It is injected at
// policy construction via [Builder.WithPolicyResponder] and must not
// call the next handler.
type RejectionResponder interface {
	RespondRateLimited(w http.ResponseWriter, r *http.Request, d Decision)
}

// Decision is the outcome of one [Gate.Check] call.
//
// For denied requests, Reason says which guard fired. RetryAfter and
// ResetAt are populated for every reason except ReasonCSRF; Limit
// carries the matched policy's budget for rate-limit headers.
type Decision struct {
	Allowed bool
	Reason  Reason

	// Policy is the matched tier, or ClassNone for pass-through requests.
	Policy PolicyClass

	// Limit is the matched policy's maximum request count per window.
	Limit int

	// Remaining is the quota left in the window after this admission.
	// Zero when the request was denied.
	Remaining int

	// RetryAfter is how long the client should wait before retrying.
	RetryAfter time.Duration

	// ResetAt is the absolute instant at which the client may retry.
	ResetAt time.Time

	responder RejectionResponder
}

// Responder returns the policy-specific rejection responder, or nil when
// the matched policy has none and the default rendering applies.
func (d Decision) Responder() RejectionResponder {
	return d.responder
}

// Err maps a denied decision onto the package's sentinel errors. Admitted
// decisions return nil.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonCSRF:
		return ErrCSRFRejected
	case ReasonThrottled:
		return ErrThrottled
	case ReasonRateLimited:
		return ErrRateLimited
	case ReasonStoreUnavailable:
		return ErrStoreUnavailable
	default:
		return nil
	}
}
