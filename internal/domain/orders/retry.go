package orders

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy is an exponential backoff schedule for order API calls.
// Retry n (1-based) waits BaseDelay*Factor^(n-1), capped at MaxDelay and
// spread by +/- Jitter of itself. A nil policy makes a single attempt.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	Jitter    float64
}

// LoginRetryPolicy is used for each login endpoint and body format.
func LoginRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Factor:    2,
		Jitter:    0.1,
	}
}

// PageRetryPolicy retries a single order page three times in total, waiting
// 1s and then 2s between attempts.
func PageRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Attempts:  3,
		BaseDelay: time.Second,
		MaxDelay:  4 * time.Second,
		Factor:    2,
	}
}

// NoRetryPolicy makes exactly one attempt.
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{Attempts: 1}
}

// Retryable reports whether err is a transient order API failure: a
// timeout, a transport error, a 5xx or a 429. Cancellation never is.
func (p *RetryPolicy) Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimited)
}

// Backoff returns the wait before retry n.
func (p *RetryPolicy) Backoff(n int) time.Duration {
	if p == nil || n <= 0 || p.BaseDelay <= 0 {
		return 0
	}

	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		delay *= factor
		if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
			break
		}
	}
	if p.Jitter > 0 {
		delay += delay * p.Jitter * (rand.Float64()*2 - 1)
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Do calls op until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done. It returns the number of calls made and
// the last error, which is ctx.Err() when ctx ended a backoff wait.
func (p *RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	attempts := 1
	if p != nil && p.Attempts > 1 {
		attempts = p.Attempts
	}

	var err error
	for n := 1; ; n++ {
		if err = op(ctx); err == nil {
			return n, nil
		}
		if n >= attempts || !p.Retryable(err) {
			return n, err
		}
		if !wait(ctx, p.Backoff(n)) {
			return n, ctx.Err()
		}
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
