package agents

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

const (
	retryAttempts     = 3
	retryInitialDelay = 2 * time.Second
	retryMaxDelay     = 15 * time.Second
)

// IsRetryable reports whether an LLM error is worth retrying (rate limiting
// or transient upstream unavailability).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range []string{"429", "503", "rate limit", "too many requests", "overloaded", "unavailable", "timeout"} {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

// WithRetry runs fn up to retryAttempts times, backing off between retryable
// failures. Non-retryable errors return immediately.
func WithRetry(ctx context.Context, fn func(context.Context) (Completion, error)) (Completion, error) {
	var (
		out Completion
		err error
	)
	for attempt := 0; attempt < retryAttempts; attempt++ {
		out, err = fn(ctx)
		if err == nil || !IsRetryable(err) {
			return out, err
		}
		if attempt == retryAttempts-1 {
			break
		}
		if !sleepWithContext(ctx, withJitter(expBackoff(attempt, retryInitialDelay, retryMaxDelay))) {
			return Completion{}, ctx.Err()
		}
	}
	return out, err
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func expBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return initial
	}
	d := initial << attempt
	if d <= 0 {
		return max
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	// +/-20% jitter.
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	j := 0.8 + r.Float64()*0.4
	return time.Duration(float64(d) * j)
}
