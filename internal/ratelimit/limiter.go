package ratelimit

import (
	"context"
	"errors"
	"time"
)

var errInvalidRule = errors.New("ratelimit: key, rate and burst must be set")

// Rule is a token bucket: Burst tokens at most, refilled at Rate per second.
type Rule struct {
	Rate  float64
	Burst int
}

// PerMinute allows n events per minute with a burst of n.
func PerMinute(n int) Rule {
	return Rule{Rate: float64(n) / 60, Burst: n}
}

func (r Rule) valid() bool {
	return r.Rate > 0 && r.Burst > 0
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter takes one token from the bucket under key.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}

// retryAfter is how long until the bucket holds one whole token again.
func retryAfter(tokens float64, rule Rule) time.Duration {
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / rule.Rate * float64(time.Second))
}
