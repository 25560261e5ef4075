package ratelimit

import (
	"context"
	"sync"
	"time"
)

// LocalBucket keeps buckets in process memory. It serves single-replica
// deployments and tests when redis is not configured.
type LocalBucket struct {
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]bucket
}

type bucket struct {
	tokens float64
	at     time.Time
}

func NewLocalBucket() *LocalBucket {
	return newLocalBucket(time.Now)
}

func newLocalBucket(now func() time.Time) *LocalBucket {
	return &LocalBucket{now: now, buckets: make(map[string]bucket)}
}

func (l *LocalBucket) Allow(_ context.Context, key string, rule Rule) (Decision, error) {
	if key == "" || !rule.valid() {
		return Decision{}, errInvalidRule
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = bucket{tokens: float64(rule.Burst), at: now}
	} else if elapsed := now.Sub(b.at); elapsed > 0 {
		b.tokens = min(float64(rule.Burst), b.tokens+elapsed.Seconds()*rule.Rate)
		b.at = now
	}

	d := Decision{}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	} else {
		d.RetryAfter = retryAfter(b.tokens, rule)
	}
	d.Remaining = int(b.tokens)
	l.buckets[key] = b
	return d, nil
}

var _ Limiter = (*LocalBucket)(nil)
