package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	reqgate "github.com/reqgate/reqgate"
)

type csrfRejection struct {
	Error string `json:"error"`
}

type rateLimitRejection struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Protect gates every request through the given [reqgate.Gate] before
// the wrapped handler runs. CSRF failures answer 403, quota failures
// 429 with Retry-After and X-RateLimit-* headers, and a fail-closed
// store outage answers 503; admitted requests reach the next handler
// untouched.
func Protect(gate *reqgate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Check(r)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			switch d.Reason {
			case reqgate.ReasonCSRF:
				writeJSON(w, http.StatusForbidden, csrfRejection{
					Error: "Invalid or missing CSRF token",
				})
			case reqgate.ReasonRateLimited:
				if responder := d.Responder(); responder != nil {
					responder.RespondRateLimited(w, r, d)
					return
				}
				writeRateLimited(w, d)
			case reqgate.ReasonThrottled:
				secs := retrySeconds(d.RetryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(w, http.StatusTooManyRequests, rateLimitRejection{
					Error:      "Too many requests",
					Message:    "Server is over capacity. Try again shortly.",
					RetryAfter: secs,
				})
			case reqgate.ReasonStoreUnavailable:
				secs := retrySeconds(d.RetryAfter)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(w, http.StatusServiceUnavailable, rateLimitRejection{
					Error:      "Service unavailable",
					Message:    "Rate limiting is temporarily unavailable. Try again shortly.",
					RetryAfter: secs,
				})
			default:
				w.WriteHeader(http.StatusForbidden)
			}
		})
	}
}

// EnsureToken issues the CSRF cookie on safe requests that arrive
// without one, so the first page load already carries a token for later
// unsafe requests. Methods the gate verifies are left alone: issuing
// during a request that is itself under verification would mask a
// forgery. Safety follows the gate's configured unsafe-method list, not
// a fixed set.
func EnsureToken(gate *reqgate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate.SafeMethod(r.Method) {
				if _, ok := gate.CSRFToken(r); !ok {
					if _, err := gate.IssueCSRFToken(w); err != nil {
						http.Error(w, "internal error", http.StatusInternalServerError)
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, d reqgate.Decision) {
	secs := retrySeconds(d.RetryAfter)

	h := w.Header()
	h.Set("Retry-After", strconv.Itoa(secs))
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))

	writeJSON(w, http.StatusTooManyRequests, rateLimitRejection{
		Error:      "Too many requests",
		Message:    "Rate limit exceeded. Retry after " + strconv.Itoa(secs) + " seconds.",
		RetryAfter: secs,
	})
}

func retrySeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
