package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

const defaultRedisTimeout = 250 * time.Millisecond

//go:embed sliding_window.lua
var slidingWindowSource string

var slidingWindowScript = redis.NewScript(slidingWindowSource)

// RedisBackend 基于 Redis 有序集合的滑动窗口计数后端，多副本共享
type RedisBackend struct {
	rdb       redis.Cmdable
	timeout   time.Duration
	connected atomic.Bool
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithTimeout bounds every round trip to redis, independently of the caller's deadline.
func WithTimeout(d time.Duration) RedisOption {
	return func(r *RedisBackend) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRedis creates a backend on top of rdb. It does not contact redis.
func NewRedis(rdb redis.Cmdable, opts ...RedisOption) *RedisBackend {
	r := &RedisBackend{
		rdb:     rdb,
		timeout: defaultRedisTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.connected.Store(true)
	return r
}

var (
	_ Backend        = (*RedisBackend)(nil)
	_ PenaltyTracker = (*RedisBackend)(nil)
)

// Check runs expire/count/insert/ttl and the penalty read/write as one script,
// so concurrent replicas never observe the same count.
func (r *RedisBackend) Check(ctx context.Context, key Key, rule Rule, now time.Time) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	nowMs := now.UnixMilli()
	args := []any{
		nowMs,
		nowMs - rule.Window.Milliseconds(),
		rule.Limit,
		rule.Penalty.Milliseconds(),
		strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString(),
		(rule.Window + keyTTLBuffer).Milliseconds(),
		nowMs + rule.Penalty.Milliseconds(),
	}

	result, err := slidingWindowScript.Run(ctx, r.rdb, []string{key.String(), key.PenaltyKey()}, args...).Slice()
	if err != nil {
		return Status{}, r.fail(err)
	}
	r.connected.Store(true)

	if len(result) != 3 {
		return Status{}, fmt.Errorf("%w: unexpected script reply %v", ErrBackendUnavailable, result)
	}
	made := cast.ToInt(result[0])
	limited := cast.ToInt(result[1]) == 1
	var until time.Time
	if ms := cast.ToInt64(result[2]); ms > 0 {
		until = time.UnixMilli(ms)
	}
	return newStatus(rule, now, made, limited, until), nil
}

// IsPenalized reads the penalty marker of key.
func (r *RedisBackend) IsPenalized(ctx context.Context, key Key, now time.Time) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ms, err := r.rdb.Get(ctx, key.PenaltyKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, r.fail(err)
	}
	until := time.UnixMilli(ms)
	if !now.Before(until) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// ApplyPenalty writes a penalty marker that expires together with the penalty.
func (r *RedisBackend) ApplyPenalty(ctx context.Context, key Key, now time.Time, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rdb.Set(ctx, key.PenaltyKey(), now.Add(d).UnixMilli(), d).Err(); err != nil {
		return r.fail(err)
	}
	return nil
}

// Clear deletes the counter and the penalty marker of key.
func (r *RedisBackend) Clear(ctx context.Context, key Key) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rdb.Del(ctx, key.String(), key.PenaltyKey()).Err(); err != nil {
		return r.fail(err)
	}
	return nil
}

// Ping checks the connection and updates Connected.
func (r *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return r.fail(err)
	}
	r.connected.Store(true)
	return nil
}

// Connected reports whether the last round trip succeeded.
func (r *RedisBackend) Connected() bool {
	return r.connected.Load()
}

// Close is a no-op: the redis client is owned by the caller.
func (r *RedisBackend) Close() error {
	return nil
}

func (r *RedisBackend) fail(err error) error {
	if r.connected.CompareAndSwap(true, false) {
		log.Warn().Err(err).Msg("rate limit backend lost connection to redis")
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
