package adapter

import (
	"context"
	"time"
)

// RateLimiter is a fixed-window request counter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
