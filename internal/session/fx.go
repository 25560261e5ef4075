package session

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("session",
	fx.Provide(provideStore),
	fx.Provide(NewLoader),
)

func provideStore(client *redis.Client) Store {
	if client == nil {
		return NewMemoryStore()
	}
	return NewRedisStore(client)
}
