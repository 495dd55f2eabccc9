package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/clipsearch/internal/domain"
	"github.com/kailas-cloud/clipsearch/internal/metrics"
)

// LimitAction defines behavior when the local request rate is exceeded.
type LimitAction string

const (
	// LimitActionWait blocks until a token is available or ctx ends.
	LimitActionWait LimitAction = "wait"
	// LimitActionReject fails fast with domain.ErrRateLimited.
	LimitActionReject LimitAction = "reject"
)

// ParseLimitAction validates a configured action. Empty means reject.
func ParseLimitAction(s string) (LimitAction, error) {
	switch LimitAction(s) {
	case "", LimitActionReject:
		return LimitActionReject, nil
	case LimitActionWait:
		return LimitActionWait, nil
	default:
		return "", fmt.Errorf("unknown rate limit action %q", s)
	}
}

// RateLimiter caps calls to the embedding provider with a token bucket.
// The API server rejects, batch commands wait.
type RateLimiter struct {
	lim    *rate.Limiter
	action LimitAction
}

// NewRateLimiter allows rps calls per second with the given burst.
// rps <= 0 disables limiting and returns nil.
func NewRateLimiter(rps float64, burst int, action LimitAction) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Limit(rps), burst), action: action}
}

// Acquire takes one token. A nil limiter always succeeds.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if l.action == LimitActionWait {
		if err := l.lim.Wait(ctx); err != nil {
			metrics.EmbeddingRateLimitedTotal.Inc()
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		}
		return nil
	}
	if !l.lim.Allow() {
		metrics.EmbeddingRateLimitedTotal.Inc()
		return domain.ErrRateLimited
	}
	return nil
}
