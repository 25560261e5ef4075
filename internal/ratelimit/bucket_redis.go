package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// takeToken refills and takes from the bucket hash at KEYS[1] using the
// redis server clock. Tokens come back as a string: lua numbers are
// truncated to integers on the way out.
var takeToken = redis.NewScript(`
local rate, burst, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])
local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "at")
local tokens, at = tonumber(state[1]), tonumber(state[2])
if tokens == nil then
  tokens = burst
else
  tokens = math.min(burst, tokens + math.max(0, now - at) / 1000 * rate)
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call("HSET", KEYS[1], "tokens", tokens, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens)}
`)

// RedisBucket shares buckets across replicas.
type RedisBucket struct {
	client redis.Scripter
}

func NewRedisBucket(client redis.Scripter) *RedisBucket {
	return &RedisBucket{client: client}
}

func (r *RedisBucket) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if key == "" || !rule.valid() {
		return Decision{}, errInvalidRule
	}
	// An idle bucket is full after Burst/Rate seconds; keep it twice that.
	ttl := max(time.Second, time.Duration(math.Ceil(2*float64(rule.Burst)/rule.Rate))*time.Second)

	out, err := takeToken.Run(ctx, r.client, []string{key}, rule.Rate, rule.Burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}
	if len(out) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected reply %v", out)
	}
	allowed, _ := out[0].(int64)
	raw, _ := out[1].(string)
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: parse tokens %q: %w", raw, err)
	}

	d := Decision{Allowed: allowed == 1, Remaining: int(tokens)}
	if !d.Allowed {
		d.RetryAfter = retryAfter(tokens, rule)
	}
	return d, nil
}

var _ Limiter = (*RedisBucket)(nil)
