package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] = sorted set for the client key
// ARGV[1] = now (ms), ARGV[2] = window (ms), ARGV[3] = max, ARGV[4] = member
//
// Returns {admitted, retained, oldest_ms}.
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])

if count < max then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  return {1, count + 1, 0}
end

local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local oldest_ms = 0
if oldest[2] then
  oldest_ms = tonumber(oldest[2])
end
return {0, count, oldest_ms}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// RedisSlidingWindow runs the sliding-window algorithm inside a Lua script
// so that prune, count, and append are atomic per key on the server.
// Timestamps are kept at millisecond resolution.
type RedisSlidingWindow struct {
	redis  redis.UniversalClient
	policy Policy
	opts   options
}

// NewRedisSlidingWindow validates p and binds the limiter to client.
func NewRedisSlidingWindow(client redis.UniversalClient, p Policy, opts ...Option) (*RedisSlidingWindow, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: nil client", ErrRedisUnavailable)
	}
	return &RedisSlidingWindow{
		redis:  client,
		policy: p,
		opts:   buildOptions(opts),
	}, nil
}

// Policy returns the limiter's parameters.
func (r *RedisSlidingWindow) Policy() Policy { return r.policy }

func (r *RedisSlidingWindow) key(k string) string {
	return r.opts.keyPrefix + k
}

// Allow implements [Limiter].
func (r *RedisSlidingWindow) Allow(ctx context.Context, key string) (bool, Info, error) {
	now := r.opts.clock.Now()
	nowMS := now.UnixMilli()
	windowMS := r.policy.Window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}
	member := fmt.Sprintf("%d-%s", nowMS, uuid.NewString())

	res, err := slidingWindowLua.Run(ctx, r.redis,
		[]string{r.key(key)},
		nowMS, windowMS, r.policy.MaxRequests, member,
	).Int64Slice()
	if err != nil {
		return false, Info{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return false, Info{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	info := Info{
		Limit:     r.policy.MaxRequests,
		ResetTime: now.Add(r.policy.Window),
		Window:    r.policy.Window,
	}

	if res[0] == 1 {
		info.Remaining = r.policy.MaxRequests - int(res[1])
		info.slot = slot{at: now, member: member}
		return true, info, nil
	}

	oldest := time.UnixMilli(res[2])
	info.RetryAfter = oldest.Add(r.policy.Window).Sub(now)
	if info.RetryAfter < 0 {
		info.RetryAfter = 0
	}
	return false, info, nil
}

// Undo removes the member recorded by an admitted call.
func (r *RedisSlidingWindow) Undo(ctx context.Context, key string, info Info) error {
	if info.slot.member == "" {
		return nil
	}
	if err := r.redis.ZRem(ctx, r.key(key), info.slot.member).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the number of retained entries for key without recording
// a request.
func (r *RedisSlidingWindow) Count(ctx context.Context, key string) (int, error) {
	cutoff := r.opts.clock.Now().Add(-r.policy.Window).UnixMilli()
	n, err := r.redis.ZCount(ctx, r.key(key), fmt.Sprintf("(%d", cutoff), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}
