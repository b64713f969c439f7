package backend

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Backend with a token-bucket limiter so bursts of
// pipeline steps cannot exceed the provider's request quota.
type RateLimited struct {
	inner   Backend
	limiter *rate.Limiter
}

// RateLimit wraps inner, allowing rps requests per second with the
// given burst. Non-positive rps disables limiting and returns inner
// unchanged.
func RateLimit(inner Backend, rps float64, burst int) Backend {
	if rps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

// Chat blocks until the limiter grants a token, then delegates.
// Cancellation while waiting surfaces as the context error.
func (r *RateLimited) Chat(ctx context.Context, req *Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, wrapErr(r.Name(), 0, err)
	}
	return r.inner.Chat(ctx, req)
}
