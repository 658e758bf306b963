package util

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket holding a single token that refills at a
// fixed rate.
type RateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		now:     time.Now,
	}
}

// Allow takes a token if one is available and reports whether it did. It
// never blocks.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.AllowN(rl.now(), 1)
}
