package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/opsledger/internal/cache"
)

const keyFormat = "opsledger:session:%d"

// Store caches loaded sessions by user id.
type Store interface {
	Get(ctx context.Context, userID snowflake.ID) (*Session, bool, error)
	Set(ctx context.Context, s *Session, ttl time.Duration) error
	Invalidate(ctx context.Context, userID snowflake.ID) error
}

func cacheKey(userID snowflake.ID) string {
	return fmt.Sprintf(keyFormat, userID.Int64())
}

type MemoryStore struct {
	items *cache.TTLCache[string, Session]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: cache.NewTTLCache[string, Session]()}
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{items: cache.NewTTLCacheWithClock[string, Session](now)}
}

func (m *MemoryStore) Get(_ context.Context, userID snowflake.ID) (*Session, bool, error) {
	s, ok := m.items.Get(cacheKey(userID))
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (m *MemoryStore) Set(_ context.Context, s *Session, ttl time.Duration) error {
	m.items.Set(cacheKey(s.UserID), *s, ttl)
	return nil
}

func (m *MemoryStore) Invalidate(_ context.Context, userID snowflake.ID) error {
	m.items.Delete(cacheKey(userID))
	return nil
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, userID snowflake.ID) (*Session, bool, error) {
	raw, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// A corrupt entry is treated as a miss and overwritten on reload.
		return nil, false, nil
	}
	return &s, true, nil
}

func (r *RedisStore) Set(ctx context.Context, s *Session, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, cacheKey(s.UserID), raw, ttl).Err()
}

func (r *RedisStore) Invalidate(ctx context.Context, userID snowflake.ID) error {
	return r.client.Del(ctx, cacheKey(userID)).Err()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
