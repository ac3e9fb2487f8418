// Package redis implements kyc.StartLimiter as a fixed-window counter in
// Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/goliatone/go-kyc"
)

const startLimitPrefix = "kyc:start_limit:"

// NewClient builds a client from a redis:// URL.
func NewClient(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// StartLimiter allows at most Limit session starts per user per Window.
type StartLimiter struct {
	client goredis.Cmdable
	limit  int64
	window time.Duration
	prefix string
}

var _ kyc.StartLimiter = (*StartLimiter)(nil)

func NewStartLimiter(client goredis.Cmdable, limit int, window time.Duration) (*StartLimiter, error) {
	if client == nil {
		return nil, errors.New("redis: client is required")
	}
	if limit <= 0 {
		return nil, errors.New("redis: limit must be positive")
	}
	if window <= 0 {
		return nil, errors.New("redis: window must be positive")
	}
	return &StartLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: startLimitPrefix,
	}, nil
}

// Allow increments the user's counter and reports whether it is within the
// limit. When denied it returns the time left in the window.
func (l *StartLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, time.Duration, error) {
	key := l.prefix + userID.String()

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis: start limit: %w", err)
	}

	if incr.Val() <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis: start limit ttl: %w", err)
	}
	if ttl < 0 {
		ttl = l.window
	}

	return false, ttl, nil
}

// Reset clears the user's counter.
func (l *StartLimiter) Reset(ctx context.Context, userID uuid.UUID) error {
	return l.client.Del(ctx, l.prefix+userID.String()).Err()
}
