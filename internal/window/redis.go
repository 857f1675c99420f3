package window

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps window state in Redis sorted sets so several processes
// can enforce one shared quota. Each admission is a member scored by its
// millisecond timestamp; pruning is a ZREMRANGEBYSCORE and the key TTL
// replaces the in-process sweeper.
//
// The prune-count-append sequence spans two pipelines, so two processes
// racing the same key can over-admit by a small constant factor under
// burst contention. That matches the tolerance the in-process store is
// held to and keeps the store Lua-free.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	clock  func() time.Time
}

// RedisOption configures a [RedisStore].
type RedisOption func(*RedisStore)

// WithRedisClock injects the time source used for scores.
func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) { s.clock = clock }
}

// NewRedisStore creates a store namespaced under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		redis:  client,
		prefix: prefix,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":w:" + key
}

// Evaluate implements [Store].
func (s *RedisStore) Evaluate(ctx context.Context, key string, max int, window time.Duration) (Decision, error) {
	now := s.clock()
	k := s.key(key)
	cutoff := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	pipe := s.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
	cardCmd := pipe.ZCard(ctx, k)
	oldestCmd := pipe.ZRangeWithScores(ctx, k, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	count := int(cardCmd.Val())
	if count >= max {
		retry := window
		if oldest := oldestCmd.Val(); len(oldest) == 1 {
			oldestAt := time.UnixMilli(int64(oldest[0].Score))
			retry = window - now.Sub(oldestAt)
		}
		return Decision{RetryAfter: retry, ResetAt: now.Add(retry)}, nil
	}

	add := s.redis.TxPipeline()
	add.ZAdd(ctx, k, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	add.PExpire(ctx, k, window)
	if _, err := add.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Decision{Allowed: true, Remaining: max - count - 1}, nil
}

// Remaining implements [Store] without recording an admission.
func (s *RedisStore) Remaining(ctx context.Context, key string, max int, window time.Duration) (int, error) {
	now := s.clock()
	k := s.key(key)
	cutoff := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	pipe := s.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
	cardCmd := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	remaining := max - int(cardCmd.Val())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
