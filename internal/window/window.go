package window

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps store backend failures. The in-process store never
// returns it.
var ErrUnavailable = errors.New("window store unavailable")

// Decision is the outcome of one Evaluate call.
type Decision struct {
	Allowed bool

	// Remaining is the quota left after this admission. Zero on denial.
	Remaining int

	// RetryAfter is how long until the oldest in-window admission ages
	// out. Set only on denial.
	RetryAfter time.Duration

	// ResetAt is the absolute retry instant. Set only on denial.
	ResetAt time.Time
}

// Store evaluates and records admissions for (key, budget, window)
// triples. Callers namespace keys per policy so tiers never share quota.
type Store interface {
	// Evaluate admits or rejects one request for key. The read-filter-
	// append sequence is atomic per store, so concurrent callers cannot
	// both admit past max.
	Evaluate(ctx context.Context, key string, max int, window time.Duration) (Decision, error)

	// Remaining reports the quota left for key without recording an
	// admission.
	Remaining(ctx context.Context, key string, max int, window time.Duration) (int, error)
}
