package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(
		provideLocker,
		provideLimiter,
		NewRedeemLimiter,
	),
)

func provideLocker(client *redis.Client) Locker {
	if client == nil {
		return NewLocalLocker()
	}
	return NewRedisLocker(client)
}

func provideLimiter(client *redis.Client) Limiter {
	if client == nil {
		return NewLocalBucket()
	}
	return NewRedisBucket(client)
}
