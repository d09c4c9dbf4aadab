package orders

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter spaces outbound calls to the order API, one limiter per path prefix.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	config   RateLimitConfig
}

// RateLimitConfig holds rate limit configuration.
type RateLimitConfig struct {
	// Requests per second when no prefix matches.
	DefaultRPS float64
	// Maximum requests that can be made at once.
	DefaultBurst int
	// Custom limits per API path prefix
	PathLimits map[string]PathLimit
}

// PathLimit defines rate limit for a specific API path.
type PathLimit struct {
	RPS   float64
	Burst int
}

// DefaultRateLimitConfig returns the limits used against the merchant API.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		DefaultRPS:   5,
		DefaultBurst: 5,
		PathLimits: map[string]PathLimit{
			"/merchant/orders": {RPS: 5, Burst: 5},
			"/auth/":           {RPS: 1, Burst: 3},
		},
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
}

// Wait blocks until a request can be made for the given path.
// Returns an error if the context is cancelled while waiting.
func (rl *RateLimiter) Wait(ctx context.Context, path string) error {
	return rl.getLimiter(path).Wait(ctx)
}

// TryAcquire attempts to take a slot without waiting.
func (rl *RateLimiter) TryAcquire(path string) bool {
	return rl.getLimiter(path).Allow()
}

func (rl *RateLimiter) getLimiter(path string) *rate.Limiter {
	key, limit := rl.findLimit(path)

	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists = rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(limit.RPS), limit.Burst)
	rl.limiters[key] = limiter
	return limiter
}

// findLimit returns the longest matching prefix and its limit.
func (rl *RateLimiter) findLimit(path string) (string, PathLimit) {
	key := ""
	limit := PathLimit{RPS: rl.config.DefaultRPS, Burst: rl.config.DefaultBurst}
	for prefix, l := range rl.config.PathLimits {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(key) {
			key, limit = prefix, l
		}
	}
	if key == "" {
		key = "default"
	}
	if limit.Burst < 1 {
		limit.Burst = 1
	}
	return key, limit
}

// GetStatus returns the tokens currently available per limiter.
func (rl *RateLimiter) GetStatus() map[string]BucketStatus {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	status := make(map[string]BucketStatus, len(rl.limiters))
	for key, limiter := range rl.limiters {
		status[key] = BucketStatus{
			AvailableTokens: limiter.Tokens(),
			MaxTokens:       float64(limiter.Burst()),
			RefillRate:      float64(limiter.Limit()),
		}
	}
	return status
}

// BucketStatus represents the current state of a limiter.
type BucketStatus struct {
	AvailableTokens float64
	MaxTokens       float64
	RefillRate      float64
}
