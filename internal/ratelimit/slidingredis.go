package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether an event for key fits in max events per window.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// slidingWindow trims expired entries and records the event only when it fits,
// so rejected attempts do not extend a caller's lockout. Scores are unix
// milliseconds. Returns {allowed, count, resetMillis}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// RedisLimiter is a sliding window limiter over Redis sorted sets, shared by
// every API replica.
type RedisLimiter struct {
	Client *redis.Client
	Prefix string
}

// Allow implements Limiter.
func (l RedisLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := time.Now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}
	windowMS := window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}

	res, err := slidingWindow.Run(ctx, l.Client, []string{l.Prefix + storeKey(window, max, key)},
		now.UnixMilli(), windowMS, max, uuid.NewString()).Int64Slice()
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	remaining := max - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return res[0] == 1, remaining, time.UnixMilli(res[2]), nil
}
