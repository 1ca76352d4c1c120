package ratelimit

import "context"

// RateLimiter caps outbound throughput toward the push service per named
// scope, shared across processes.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
