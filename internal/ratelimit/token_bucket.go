package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrBucketDisabled = errors.New("rate_limiter_disabled")
	ErrInvalidBucket  = errors.New("invalid_rate_limit")
)

// takeToken refills the bucket from redis server time, then takes one token.
// The remaining balance comes back as a string because redis truncates Lua
// numbers to integers.
var takeToken = redis.NewScript(`
local rate, burst, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])
local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) / 1000 * rate)
end

local granted = 0
if tokens >= 1 then
  tokens = tokens - 1
  granted = 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {granted, tostring(tokens)}
`)

// TokenBucket is a redis-backed bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
}

// RateLimitResult feeds the X-RateLimit-* and Retry-After headers.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Allow takes one token from key. rate is tokens per second, burst the
// bucket size.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: burst}
	if t == nil || t.client == nil {
		return denied, ErrBucketDisabled
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return denied, fmt.Errorf("%w: key=%q rate=%v burst=%d", ErrInvalidBucket, key, rate, burst)
	}

	reply, err := takeToken.Run(ctx, t.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Slice()
	if err != nil {
		return denied, err
	}
	if len(reply) != 2 {
		return denied, fmt.Errorf("rate limit script returned %d values", len(reply))
	}

	granted, _ := reply[0].(int64)
	balance, _ := strconv.ParseFloat(fmt.Sprint(reply[1]), 64)

	result := &RateLimitResult{
		Allowed:   granted == 1,
		Limit:     burst,
		Remaining: int(balance),
	}
	if !result.Allowed && balance < 1 {
		result.RetryAfter = time.Duration((1 - balance) / rate * float64(time.Second))
	}
	return result, nil
}

// bucketTTL keeps idle buckets around for two full refills.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Max(1, math.Ceil(2*float64(burst)/rate))
	return time.Duration(seconds) * time.Second
}
