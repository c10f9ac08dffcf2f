package lockout

import (
	"context"
	"fmt"
	"strconv"

	"github.com/MrEthical07/authstate/clock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisTracker keeps each identity's failures in a sorted set scored by
// millisecond timestamp, giving the same sliding decay as [Tracker].
type RedisTracker struct {
	redis  redis.UniversalClient
	cfg    Config
	clock  clock.Clock
	prefix string
}

// NewRedisTracker binds a tracker to redisClient. Keys are "alo:<identity>".
func NewRedisTracker(redisClient redis.UniversalClient, cfg Config, c clock.Clock) (*RedisTracker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if redisClient == nil {
		return nil, fmt.Errorf("%w: nil client", ErrLockoutUnavailable)
	}
	return &RedisTracker{
		redis:  redisClient,
		cfg:    cfg,
		clock:  clock.OrSystem(c),
		prefix: "alo:",
	}, nil
}

func (l *RedisTracker) key(identity string) string {
	return l.prefix + l.cfg.identity(identity)
}

func (l *RedisTracker) cutoff() string {
	return strconv.FormatInt(l.clock.Now().Add(-l.cfg.Duration).UnixMilli(), 10)
}

// RecordFailure adds a failure, trims decayed entries, and refreshes the
// key TTL so idle identities expire server-side.
func (l *RedisTracker) RecordFailure(ctx context.Context, identity string) error {
	key := l.key(identity)
	now := l.clock.Now().UnixMilli()

	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", l.cutoff())
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: uuid.NewString()})
		pipe.PExpire(ctx, key, l.cfg.Duration)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Failures returns the number of failures in the window.
func (l *RedisTracker) Failures(ctx context.Context, identity string) (int, error) {
	count, err := l.redis.ZCount(ctx, l.key(identity), "("+l.cutoff(), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}

// IsLocked reports whether the failure count reached MaxAttempts.
func (l *RedisTracker) IsLocked(ctx context.Context, identity string) (bool, error) {
	n, err := l.Failures(ctx, identity)
	if err != nil {
		return false, err
	}
	return n >= l.cfg.MaxAttempts, nil
}

// Clear deletes the identity's failures (e.g., after successful login).
func (l *RedisTracker) Clear(ctx context.Context, identity string) error {
	if err := l.redis.Del(ctx, l.key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
