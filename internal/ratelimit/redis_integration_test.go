//go:build integration

package ratelimit

// Run with: go test -tags=integration ./internal/ratelimit -count=1

import (
	"context"
	"fmt"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBucketSharesBudget(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	rule := Rule{Rate: 0.01, Burst: 2}

	// Two replicas drawing from the same key.
	a, b := NewRedisBucket(client), NewRedisBucket(client)

	d, err := a.Allow(ctx, "opsledger:test:u1", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, err = b.Allow(ctx, "opsledger:test:u1", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = a.Allow(ctx, "opsledger:test:u1", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, 90*time.Second)

	ttl, err := client.PTTL(ctx, "opsledger:test:u1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisLockerExclusive(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	l := NewRedisLocker(client)

	token, ok, err := l.TryLock(ctx, "scheduler:overdue", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "scheduler:overdue", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "scheduler:overdue", token))
	_, ok, err = l.TryLock(ctx, "scheduler:overdue", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
