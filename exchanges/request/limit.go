package request

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// EndpointLimit is a sub-type key for rate limiting groups of endpoints
type EndpointLimit int

// Unset is used when an endpoint carries no specific limit
const Unset EndpointLimit = -1

var errLimiterNotFound = errors.New("rate limiter not found for endpoint")

// RateLimitDefinitions maps endpoint groups to their token buckets
type RateLimitDefinitions map[EndpointLimit]*rate.Limiter

// NewRateLimit returns a token bucket allowing actions per interval
func NewRateLimit(interval time.Duration, actions int) *rate.Limiter {
	if actions <= 0 || interval <= 0 {
		// No sensible window; allow everything
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(actions)), actions)
}

// Limiter applies per-endpoint rate limits for a requester
type Limiter struct {
	definitions RateLimitDefinitions
}

// NewLimiter returns a limiter over the supplied definitions
func NewLimiter(definitions RateLimitDefinitions) *Limiter {
	return &Limiter{definitions: definitions}
}

// Wait blocks until the endpoint's bucket permits another request
func (l *Limiter) Wait(ctx context.Context, ep EndpointLimit) error {
	if l == nil || ep == Unset {
		return nil
	}
	limiter, ok := l.definitions[ep]
	if !ok {
		return errLimiterNotFound
	}
	return limiter.Wait(ctx)
}

func (r *Requester) initiateRateLimit(ctx context.Context, ep EndpointLimit) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx, ep)
}
