package window

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisTestStore(t *testing.T, clock func() time.Time) (*RedisStore, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, "rg", WithRedisClock(clock))

	return store, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRedisEvaluateAdmitsBudgetThenRejects(t *testing.T) {
	clock, advance := newFakeClock(time.Unix(1700000000, 0))
	store, done := newRedisTestStore(t, clock)
	defer done()
	ctx := context.Background()

	const max = 5
	window := 15 * time.Minute

	for i := 0; i < max; i++ {
		d, err := store.Evaluate(ctx, "auth:1.2.3.4:ua-x", max, window)
		if err != nil {
			t.Fatalf("evaluate %d failed: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be admitted", i)
		}
		advance(time.Millisecond)
	}

	d, err := store.Evaluate(ctx, "auth:1.2.3.4:ua-x", max, window)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("request past budget should be rejected")
	}

	want := window - 5*time.Millisecond
	if d.RetryAfter != want {
		t.Fatalf("retry after = %v, want %v", d.RetryAfter, want)
	}
}

func TestRedisSlidingReadmission(t *testing.T) {
	clock, advance := newFakeClock(time.Unix(1700000000, 0))
	store, done := newRedisTestStore(t, clock)
	defer done()
	ctx := context.Background()

	const max = 2
	window := time.Second

	for i := 0; i < max; i++ {
		if d, _ := store.Evaluate(ctx, "k", max, window); !d.Allowed {
			t.Fatalf("request %d should be admitted", i)
		}
		advance(10 * time.Millisecond)
	}
	if d, _ := store.Evaluate(ctx, "k", max, window); d.Allowed {
		t.Fatal("full window should reject")
	}

	advance(time.Second)
	if d, _ := store.Evaluate(ctx, "k", max, window); !d.Allowed {
		t.Fatal("request should be admitted after the window slid past the oldest admission")
	}
}

func TestRedisDistinctKeysNeverShareQuota(t *testing.T) {
	clock, _ := newFakeClock(time.Unix(1700000000, 0))
	store, done := newRedisTestStore(t, clock)
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d, _ := store.Evaluate(ctx, "a", 3, time.Minute); !d.Allowed {
			t.Fatalf("key a request %d should be admitted", i)
		}
	}
	if d, _ := store.Evaluate(ctx, "a", 3, time.Minute); d.Allowed {
		t.Fatal("key a should be exhausted")
	}
	if d, _ := store.Evaluate(ctx, "b", 3, time.Minute); !d.Allowed {
		t.Fatal("key b must not be affected by key a's quota")
	}
}

func TestRedisRemainingDoesNotAdmit(t *testing.T) {
	clock, _ := newFakeClock(time.Unix(1700000000, 0))
	store, done := newRedisTestStore(t, clock)
	defer done()
	ctx := context.Background()

	if _, err := store.Evaluate(ctx, "k", 5, time.Minute); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		n, err := store.Remaining(ctx, "k", 5, time.Minute)
		if err != nil {
			t.Fatalf("remaining failed: %v", err)
		}
		if n != 4 {
			t.Fatalf("remaining = %d, want 4 (peek must not spend quota)", n)
		}
	}
}

func TestRedisEvaluateReportsBackendFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, "rg")
	mr.Close()

	_, err = store.Evaluate(context.Background(), "k", 5, time.Minute)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
