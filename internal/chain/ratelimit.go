package chain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound calls per endpoint using a token bucket.
// The pricing client keys it by route so portfolio refreshes and UTXO
// listings do not starve each other.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained requests
// with bursts up to burst.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(ratePerSecond),
		burst:    burst,
	}
}

// Allow reports whether a request to endpoint may proceed now.
func (r *RateLimiter) Allow(endpoint string) bool {
	return r.limiter(endpoint).Allow()
}

// Wait blocks until a request to endpoint is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	return r.limiter(endpoint).Wait(ctx)
}

func (r *RateLimiter) limiter(endpoint string) *rate.Limiter {
	r.mu.RLock()
	l, ok := r.limiters[endpoint]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok = r.limiters[endpoint]; ok {
		return l
	}
	l = rate.NewLimiter(r.limit, r.burst)
	r.limiters[endpoint] = l
	return l
}
