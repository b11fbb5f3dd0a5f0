package guardrail

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit applies a per-user request rate limit at every checkpoint.
// Limiters are created lazily per user and share one configuration.
type RateLimit struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimit builds a limiter allowing perMinute sustained operations with
// the given burst.
func NewRateLimit(perMinute, burst int) *RateLimit {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimit{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (g *RateLimit) Name() string { return "rate_limit" }

func (g *RateLimit) Check(_ context.Context, _ Checkpoint, req Request) error {
	if !g.limiterFor(req.UserID).Allow() {
		return fmt.Errorf("rate limit reached, please slow down and try again shortly")
	}
	return nil
}

func (g *RateLimit) limiterFor(userID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	lim, ok := g.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(g.rate, g.burst)
		g.limiters[userID] = lim
	}
	return lim
}
