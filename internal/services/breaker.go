package services

import (
	"errors"
	"sync"
	"time"

	"github.com/niaga-platform/service-order-dashboard/internal/metrics"
)

// ErrCircuitOpen is returned without any I/O while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the state of a CircuitBreaker.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Name      string
	Threshold int           // consecutive failures that open the circuit
	Cooldown  time.Duration // time spent open before a trial call
	Now       func() time.Time
}

// CircuitBreaker stops calls to a failing upstream. It opens after Threshold
// consecutive failures, lets one trial call through after Cooldown, and
// closes again on any success.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	threshold    int
	cooldown     time.Duration
	now          func() time.Time
	state        BreakerState
	failures     int
	lastFailure  time.Time
	trialPending bool
}

// BreakerSnapshot is a read-only view of the breaker.
type BreakerSnapshot struct {
	State       BreakerState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure time.Time    `json:"lastFailure"`
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "order-api"
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	metrics.SetBreakerState(cfg.Name, string(StateClosed))

	return &CircuitBreaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		now:       cfg.Now,
		state:     StateClosed,
	}
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen while
// open and within the cooldown, or while a half-open trial is in flight.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.trialPending = true
		return nil
	case StateHalfOpen:
		if cb.trialPending {
			return ErrCircuitOpen
		}
		cb.trialPending = true
		return nil
	default:
		return nil
	}
}

// Success records a successful call and closes the circuit.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.trialPending = false
	cb.setState(StateClosed)
}

// Failure records a failed call.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()
	cb.trialPending = false
	if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
		cb.setState(StateOpen)
	}
}

// Snapshot returns the current breaker state.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{State: cb.state, Failures: cb.failures, LastFailure: cb.lastFailure}
}

func (cb *CircuitBreaker) setState(s BreakerState) {
	if cb.state == s {
		return
	}
	cb.state = s
	metrics.SetBreakerState(cb.name, string(s))
}
