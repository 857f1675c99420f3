package reqgate

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/reqgate/reqgate/csrf"
	"github.com/reqgate/reqgate/internal/window"
	"golang.org/x/time/rate"
)

// Gate is the single per-request decision point: CSRF verification for
// unsafe methods, then rate-limit evaluation. Build one through
// [Builder.Build]; all methods are safe for arbitrary concurrent use.
type Gate struct {
	config   Config
	store    window.Store
	memory   *window.MemoryStore
	csrf     *csrf.Manager
	policies map[PolicyClass]*policy
	keys     KeyResolver
	throttle *rate.Limiter
	metrics  *Metrics
	events   *eventDispatcher
	clock    func() time.Time

	mu          sync.Mutex
	stopSweeper context.CancelFunc
	sweeperDone <-chan struct{}
}

// Check evaluates one inbound request and returns the gating decision.
// Sequencing:
//
//  1. Unsafe method → CSRF verification. A failure short-circuits before
//     any rate-limit accounting, so forged requests spend no quota.
//  2. Global throughput throttle, when enabled.
//  3. Policy resolution by method+path; no match passes through.
//  4. Sliding-window evaluation for (policy, client key).
//
// Check writes nothing to the response; pair it with middleware.Protect
// or render rejections from the returned [Decision].
func (g *Gate) Check(r *http.Request) Decision {
	start := time.Now()
	d := g.check(r)
	g.metrics.Observe(MetricCheckLatency, time.Since(start))
	return d
}

func (g *Gate) check(r *http.Request) Decision {
	if g.isUnsafeMethod(r.Method) && !g.csrfExempt(r.URL.Path) {
		if !g.csrf.Verify(r) {
			g.metrics.Inc(MetricCSRFRejected)
			g.events.Emit(r.Context(), Event{
				Timestamp: g.clock(),
				Kind:      EventCSRFRejected,
				ClientKey: g.keys.ClientKey(r),
				Method:    r.Method,
				Path:      r.URL.Path,
			})
			return Decision{Reason: ReasonCSRF}
		}
		g.metrics.Inc(MetricCSRFVerified)
	}

	if g.throttle != nil && !g.throttle.Allow() {
		g.metrics.Inc(MetricThrottled)
		now := g.clock()
		g.events.Emit(r.Context(), Event{
			Timestamp:    now,
			Kind:         EventThrottled,
			ClientKey:    g.keys.ClientKey(r),
			Method:       r.Method,
			Path:         r.URL.Path,
			RetryAfterMs: time.Second.Milliseconds(),
		})
		return Decision{
			Reason:     ReasonThrottled,
			RetryAfter: time.Second,
			ResetAt:    now.Add(time.Second),
		}
	}

	class := g.classify(r.Method, r.URL.Path)
	pol, ok := g.policies[class]
	if !ok {
		g.metrics.Inc(MetricRequestPassthrough)
		return Decision{Allowed: true}
	}

	key := string(pol.class) + ":" + pol.keys.ClientKey(r)
	wd, err := g.store.Evaluate(r.Context(), key, pol.max, pol.window)
	if err != nil {
		g.metrics.Inc(MetricStoreError)
		if g.config.Store.FailOpen {
			return Decision{Allowed: true, Policy: pol.class, Limit: pol.max}
		}
		return Decision{
			Reason:     ReasonStoreUnavailable,
			Policy:     pol.class,
			Limit:      pol.max,
			RetryAfter: time.Second,
			ResetAt:    g.clock().Add(time.Second),
			responder:  pol.responder,
		}
	}

	if !wd.Allowed {
		g.metrics.Inc(MetricRateLimited)
		g.metrics.Inc(limitedMetricFor(pol.class))
		g.events.Emit(r.Context(), Event{
			Timestamp:    g.clock(),
			Kind:         EventRateLimited,
			Policy:       pol.class,
			ClientKey:    pol.keys.ClientKey(r),
			Method:       r.Method,
			Path:         r.URL.Path,
			RetryAfterMs: wd.RetryAfter.Milliseconds(),
		})
		return Decision{
			Reason:     ReasonRateLimited,
			Policy:     pol.class,
			Limit:      pol.max,
			RetryAfter: wd.RetryAfter,
			ResetAt:    wd.ResetAt,
			responder:  pol.responder,
		}
	}

	g.metrics.Inc(MetricRequestAllowed)
	return Decision{
		Allowed:   true,
		Policy:    pol.class,
		Limit:     pol.max,
		Remaining: wd.Remaining,
	}
}

// IssueCSRFToken mints a token, sets the cookie on w, and returns the
// token for embedding in a page. CSPRNG failure propagates; the gate
// never issues a predictable token.
func (g *Gate) IssueCSRFToken(w http.ResponseWriter) (string, error) {
	token, err := g.csrf.Issue(w)
	if err != nil {
		return "", err
	}
	g.metrics.Inc(MetricCSRFIssued)
	return token, nil
}

// CSRFToken reads the current cookie token without side effects.
func (g *Gate) CSRFToken(r *http.Request) (string, bool) {
	return g.csrf.Current(r)
}

// SafeMethod reports whether the gate leaves method outside CSRF
// verification, i.e. it is not listed in Config.Routing.UnsafeMethods.
// Token issuance should happen only on safe methods.
func (g *Gate) SafeMethod(method string) bool {
	return !g.isUnsafeMethod(method)
}

// Remaining reports the quota left for a client key under a policy class
// without spending any of it. Diagnostics and admin surfaces only. A
// class with no enabled policy returns [ErrPolicyUnknown], so an empty
// quota is never conflated with an absent policy.
func (g *Gate) Remaining(ctx context.Context, class PolicyClass, clientKey string) (int, error) {
	pol, ok := g.policies[class]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrPolicyUnknown, class)
	}
	return g.store.Remaining(ctx, string(class)+":"+clientKey, pol.max, pol.window)
}

// Start launches the periodic sweep of the in-process store. It is a
// no-op when the gate runs on a shared store (Redis TTLs handle
// eviction) or when the sweeper is already running. Cancel ctx or call
// [Gate.Close] to stop it.
func (g *Gate) Start(ctx context.Context) {
	if g.memory == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopSweeper != nil {
		return
	}

	sctx, cancel := context.WithCancel(ctx)
	g.stopSweeper = cancel

	done := make(chan struct{})
	g.sweeperDone = done

	t := time.NewTicker(g.config.Store.SweepInterval)
	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-sctx.Done():
				return
			case <-t.C:
				removed := g.memory.Sweep(g.clock())
				g.metrics.Add(MetricSweepRemoved, uint64(removed))
			}
		}
	}()
}

// Close stops the sweeper and waits for it to exit. Safe to call
// multiple times and on gates that were never started.
func (g *Gate) Close() {
	if g == nil {
		return
	}

	g.mu.Lock()
	cancel := g.stopSweeper
	done := g.sweeperDone
	g.stopSweeper = nil
	g.sweeperDone = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	g.events.Close()
}

// EventsDropped reports how many rejection events were discarded because
// the dispatch queue was full.
func (g *Gate) EventsDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.events.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the gate's counters
// for export.
func (g *Gate) MetricsSnapshot() MetricsSnapshot {
	if g == nil || g.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return g.metrics.Snapshot()
}

func (g *Gate) csrfExempt(path string) bool {
	for _, p := range g.config.CSRF.ExemptPaths {
		if path == p {
			return true
		}
	}
	return false
}
