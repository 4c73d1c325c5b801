package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles analyst requests to a per-minute budget shared by
// every goroutine holding the same Client
type RateLimiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRateLimiter allows requestsPerMinute requests with a burst of one.
// Zero or negative disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, 1),
		logger:  slog.Default().With("component", "llm_rate_limiter"),
	}
}

// Wait blocks until a request may be sent or ctx is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait aborted: %w", err)
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		r.logger.Debug("throttled analyst request", "waited", waited)
	}
	return nil
}

// Limit returns the configured requests per second
func (r *RateLimiter) Limit() rate.Limit {
	return r.limiter.Limit()
}
