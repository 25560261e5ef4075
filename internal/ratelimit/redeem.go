package ratelimit

import (
	"context"
	"fmt"

	"github.com/smallbiznis/opsledger/internal/apperr"
	"github.com/smallbiznis/opsledger/internal/config"
	"github.com/smallbiznis/opsledger/internal/observability/metrics"
	"go.uber.org/zap"
)

const keyRedeemUser = "opsledger:redeem:user:%s"

var ErrTooManyAttempts = apperr.New(apperr.KindRateLimited, "too_many_attempts")

// RedeemLimiter throttles access-code guesses per user.
type RedeemLimiter struct {
	limiter Limiter
	policy  *config.PolicyHolder
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewRedeemLimiter(limiter Limiter, policy *config.PolicyHolder, m *metrics.Metrics, log *zap.Logger) *RedeemLimiter {
	return &RedeemLimiter{limiter: limiter, policy: policy, metrics: m, log: log.Named("ratelimit.redeem")}
}

// Check returns ErrTooManyAttempts once the per-minute budget is spent.
// Limiter outages fail open and are logged.
func (l *RedeemLimiter) Check(ctx context.Context, userID string) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	perMinute := l.policy.Get().RateLimit.RedeemPerMinute
	d, err := l.limiter.Allow(ctx, fmt.Sprintf(keyRedeemUser, userID), PerMinute(perMinute))
	if err != nil {
		l.log.Warn("redeem limiter unavailable", zap.Error(err))
		return nil
	}
	if !d.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, "redeem_access_code")
		return ErrTooManyAttempts
	}
	return nil
}
