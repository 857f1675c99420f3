package window

import (
	"context"
	"sync"
	"time"
)

type record struct {
	// resetAt marks when the record may be recreated from scratch. It is
	// a garbage-collection convenience, not a window boundary: admission
	// is always decided from the timestamp history.
	resetAt time.Time

	// window is the duration supplied on the last Evaluate, kept so the
	// sweeper can prune stale timestamps without knowing the policy.
	window time.Duration

	stamps []time.Time
}

// MemoryStore is the in-process window store: one map, one mutex. The
// sweep task takes the same lock as Evaluate, so an eviction can never
// race an in-flight admission.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
	clock   func() time.Time
}

// MemoryOption configures a [MemoryStore].
type MemoryOption func(*MemoryStore)

// WithClock injects the time source. Tests use a fake clock; production
// uses the default time.Now.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.clock = clock }
}

// NewMemoryStore creates an empty store. The caller owns the sweep
// lifecycle: either call [MemoryStore.Sweep] on its own schedule or run
// [MemoryStore.StartSweeper].
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*record),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate implements [Store]. The context is unused; the store does no I/O.
func (s *MemoryStore) Evaluate(_ context.Context, key string, max int, window time.Duration) (Decision, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !now.Before(rec.resetAt) {
		rec = &record{resetAt: now.Add(window), window: window}
		s.records[key] = rec
	}
	rec.window = window

	live := pruneStamps(rec, now)
	if live >= max {
		retry := window - now.Sub(rec.stamps[0])
		return Decision{RetryAfter: retry, ResetAt: now.Add(retry)}, nil
	}

	rec.stamps = append(rec.stamps, now)
	return Decision{Allowed: true, Remaining: max - len(rec.stamps)}, nil
}

// Remaining implements [Store] without recording an admission.
func (s *MemoryStore) Remaining(_ context.Context, key string, max int, window time.Duration) (int, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !now.Before(rec.resetAt) {
		return max, nil
	}

	live := pruneStamps(rec, now)
	if live >= max {
		return 0, nil
	}
	return max - live, nil
}

// Sweep removes records whose resetAt has passed and whose timestamp
// history is empty after pruning. Records still holding in-window
// admissions are never removed, even past resetAt. Returns the eviction
// count.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if pruneStamps(rec, now) == 0 && now.After(rec.resetAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled. The
// returned channel closes when the sweeper goroutine exits.
func (s *MemoryStore) StartSweeper(ctx context.Context, every time.Duration) <-chan struct{} {
	done := make(chan struct{})

	t := time.NewTicker(every)
	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep(s.clock())
			}
		}
	}()

	return done
}

// Len reports the current record count. Diagnostics only.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// pruneStamps drops timestamps that have aged out of the record's window
// and returns the live count. Caller must hold the store lock.
func pruneStamps(rec *record, now time.Time) int {
	cutoff := now.Add(-rec.window)
	live := rec.stamps[:0]
	for _, ts := range rec.stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	rec.stamps = live
	return len(live)
}
