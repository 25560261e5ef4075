package cache

import (
	"testing"
	"time"

	"github.com/smallbiznis/opsledger/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpires(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	c := NewTTLCacheWithClock[string, int](clk.Now)

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clk.Advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheDeleteAndZeroTTL(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("k", "v", 0)
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", "v", time.Hour)
	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}
