package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-kyc/adapters/redis"
)

func newLimiter(t *testing.T, limit int, window time.Duration) (*redis.StartLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := redis.NewStartLimiter(client, limit, window)
	require.NoError(t, err)
	return limiter, mr
}

func TestStartLimiterAllowsUpToLimit(t *testing.T) {
	limiter, _ := newLimiter(t, 2, time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		ok, retry, err := limiter.Allow(ctx, userID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, retry)
	}

	ok, retry, err := limiter.Allow(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Minute)
}

func TestStartLimiterIsPerUser(t *testing.T) {
	limiter, _ := newLimiter(t, 1, time.Minute)
	ctx := context.Background()

	ok, _, err := limiter.Allow(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = limiter.Allow(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStartLimiterWindowExpires(t *testing.T) {
	limiter, mr := newLimiter(t, 1, time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	ok, _, err := limiter.Allow(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = limiter.Allow(ctx, userID)
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(time.Minute + time.Second)

	ok, _, err = limiter.Allow(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStartLimiterReset(t *testing.T) {
	limiter, _ := newLimiter(t, 1, time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	_, _, err := limiter.Allow(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, limiter.Reset(ctx, userID))

	ok, _, err := limiter.Allow(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStartLimiterReportsBackendErrors(t *testing.T) {
	limiter, mr := newLimiter(t, 1, time.Minute)
	mr.Close()

	_, _, err := limiter.Allow(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestNewStartLimiterValidatesArguments(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:0"})
	defer client.Close()

	_, err := redis.NewStartLimiter(nil, 1, time.Minute)
	assert.Error(t, err)

	_, err = redis.NewStartLimiter(client, 0, time.Minute)
	assert.Error(t, err)

	_, err = redis.NewStartLimiter(client, 1, 0)
	assert.Error(t, err)
}

func TestNewClientParsesURL(t *testing.T) {
	client, err := redis.NewClient("redis://localhost:6379/2")
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, 2, client.Options().DB)

	_, err = redis.NewClient("not a url")
	assert.Error(t, err)
}
