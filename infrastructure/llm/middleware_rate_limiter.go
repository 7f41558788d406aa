package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware allows at most perMinute requests per minute with a
// burst of one. Waiting respects the request context, so a call that cannot
// get a slot before its deadline fails instead of queueing past it.
// The limiter is shared by every CoreLLM the middleware wraps.
func RateLimitMiddleware(perMinute int) Middleware {
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(max(perMinute, 1))), 1)

	return func(next CoreLLM) CoreLLM {
		if perMinute <= 0 {
			return next
		}
		return &rateLimitedLLM{next: next, limiter: limiter}
	}
}

func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

func (r *rateLimitedLLM) GetModel() string { return r.next.GetModel() }
