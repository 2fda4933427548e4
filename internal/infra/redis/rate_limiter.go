package redis

import (
	"context"
	"time"

	"aswaq-payments/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter. The increment and the window TTL are
// applied atomically, so a counter can never outlive its window.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow counts one request against key. A non-positive limit disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	count, err := r.client.IncrWindow(ctx, key, window)
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}
