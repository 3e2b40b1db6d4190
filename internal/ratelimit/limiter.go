// Package ratelimit throttles outgoing requests to remote services.
package ratelimit

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"
)

// ErrDeadline is returned by Wait when the context deadline would pass
// before the limiter admits the request. The context itself is still live.
var ErrDeadline = fmt.Errorf("wait would exceed deadline: %w", context.DeadlineExceeded)

// Limiter wraps rate.Limiter with a name for logging/debugging.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// New creates a limiter allowing requestsPerSecond on average. The burst
// is the rate rounded up, so fractional rates still admit one request.
func New(name string, requestsPerSecond float64) *Limiter {
	burst := int(math.Ceil(requestsPerSecond))
	return NewWithBurst(name, requestsPerSecond, burst)
}

// NewWithBurst creates a new rate limiter with custom burst size.
func NewWithBurst(name string, requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		name:    name,
	}
}

// Wait blocks until the rate limiter allows a request to proceed.
// Returns an error if the context is cancelled, or ErrDeadline if the
// context deadline comes first.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
			return fmt.Errorf("rate limit wait for %s: %w", l.name, ErrDeadline)
		}
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Rate returns the configured requests per second.
func (l *Limiter) Rate() float64 {
	return float64(l.limiter.Limit())
}

// Burst returns the number of requests admitted without waiting.
func (l *Limiter) Burst() int {
	return l.limiter.Burst()
}

// Name returns the name of this rate limiter.
func (l *Limiter) Name() string {
	return l.name
}
