package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitStore_Allow_UnderLimit(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewRateLimitStore(client)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := store.Allow(ctx, "1.2.3.4", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestRateLimitStore_Allow_OverLimit(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewRateLimitStore(client)
	ctx := context.Background()

	var last *RateLimitResult
	for i := 0; i < 4; i++ {
		res, err := store.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		last = res
	}

	assert.False(t, last.Allowed)
	assert.Equal(t, int64(0), last.Remaining)
}

func TestRateLimitStore_Allow_IsolatesKeys(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := NewRateLimitStore(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
	}

	res, err := store.Allow(ctx, "5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a different client keeps its own counter")
}
