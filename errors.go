package reqgate

import "errors"

var (
	// ErrCSRFRejected is returned by [Decision.Err] when a state-changing
	// request carried a missing or mismatched CSRF token. Missing and
	// mismatched tokens deliberately collapse into one error so callers
	// cannot build a verification oracle out of the distinction.
	ErrCSRFRejected = errors.New("invalid or missing csrf token")
	// ErrRateLimited is returned by [Decision.Err] when a request exceeded
	// the quota of its matched policy.
	ErrRateLimited = errors.New("rate limited")
	// ErrThrottled is returned by [Decision.Err] when the gate-wide
	// throughput throttle denied a request before policy evaluation.
	ErrThrottled = errors.New("global throughput throttle engaged")
	// ErrStoreUnavailable is returned by [Decision.Err] when a shared
	// (Redis-backed) window store call failed and Config.Store.FailOpen
	// is disabled. With fail-open the request is admitted instead and
	// the failure is only counted in metrics.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	// ErrPolicyUnknown is returned by [Gate.Remaining] when no enabled
	// policy exists for the requested class.
	ErrPolicyUnknown = errors.New("no enabled policy for class")
)
