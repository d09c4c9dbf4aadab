package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RequestQueue collapses concurrent calls sharing a request ID into one
// execution guarded by a circuit breaker.
type RequestQueue struct {
	group   singleflight.Group
	breaker *CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

// NewRequestQueue creates a request queue. timeout bounds each shared execution.
func NewRequestQueue(breaker *CircuitBreaker, timeout time.Duration, logger *zap.Logger) *RequestQueue {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestQueue{
		breaker: breaker,
		timeout: timeout,
		logger:  logger,
	}
}

// Execute runs fn once per in-flight requestID; callers arriving while it
// runs receive the same result. The breaker is consulted before fn runs and
// ErrCircuitOpen is returned without calling fn while it is open.
//
// fn runs detached from the caller's cancellation so that one caller going
// away does not fail the others.
func (q *RequestQueue) Execute(ctx context.Context, requestID string, fn func(ctx context.Context) (interface{}, error)) (v interface{}, shared bool, err error) {
	ch := q.group.DoChan(requestID, func() (interface{}, error) {
		if err := q.breaker.Allow(); err != nil {
			q.logger.Warn("request rejected by circuit breaker",
				zap.String("request_id", requestID),
			)
			return nil, err
		}

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
		defer cancel()

		result, err := fn(runCtx)
		if err != nil {
			q.breaker.Failure()
			q.logger.Warn("queued request failed",
				zap.String("request_id", requestID),
				zap.String("breaker_state", string(q.breaker.Snapshot().State)),
				zap.Error(err),
			)
			return nil, err
		}
		q.breaker.Success()
		return result, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Breaker returns the queue's circuit breaker.
func (q *RequestQueue) Breaker() *CircuitBreaker {
	return q.breaker
}
