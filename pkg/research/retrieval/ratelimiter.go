package retrieval

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces outbound calls to one endpoint at least interval apart.
// It wraps a burst-one token bucket; the lock is held while waiting so callers
// are released one at a time, each one interval after the previous grant.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiter  *rate.Limiter
	last     time.Time
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimiter{interval: interval, limiter: rate.NewLimiter(limit, 1)}
}

func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}

// Acquire blocks until the caller may issue its request. The first call
// never waits.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// The token is taken at the grant instant, so grants are never
		// closer than one interval even when a waiter wakes late.
		now := time.Now()
		if r.limiter.AllowN(now, 1) {
			r.last = now
			return nil
		}
		missing := 1 - r.limiter.TokensAt(now)
		if err := sleep(ctx, time.Duration(missing*float64(r.interval))+time.Microsecond); err != nil {
			return err
		}
	}
}

// Cooldown holds every caller for d after the provider signalled throttling.
// The next grant comes at least one interval after the cooldown ends.
func (r *RateLimiter) Cooldown(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := sleep(ctx, d); err != nil {
		return err
	}
	now := time.Now()
	r.limiter.ReserveN(now, 1)
	r.last = now
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
