package services

import (
	"time"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// CoverageStoppingRule ends pagination once at least MinRows orders are held
// and day coverage reaches MinCoverage percent.
type CoverageStoppingRule struct {
	MinRows     int
	MinCoverage int
}

// FailureThreshold caps consecutive page failures once more than MinRows
// orders are held.
type FailureThreshold struct {
	MinRows     int
	MaxFailures int
}

// PaginationPolicy drives how Fetcher walks the order list.
type PaginationPolicy struct {
	PageSize    int
	MaxPages    int
	MaxRows     int
	PageTimeout time.Duration

	// PageTimeoutOverrides replaces PageTimeout for specific pages.
	PageTimeoutOverrides map[int]time.Duration

	// PageRetry retries a page that failed with a transient error. Every
	// attempt gets its own page deadline.
	PageRetry *orders.RetryPolicy

	// SkipPages are never requested when the upstream answered page 1 as
	// asked. The default skips page 2, which hangs on the current upstream;
	// remove it once the order API pages correctly.
	SkipPages []int

	// StoppingRules are evaluated in order after every successful page.
	StoppingRules []CoverageStoppingRule

	// Pagination stops after StallPages consecutive pages past StallAfterPage
	// each add fewer than StallMinRows new orders.
	StallMinRows   int
	StallAfterPage int
	StallPages     int

	// FailureThresholds are checked in order; DefaultMaxFailures applies
	// when none matches.
	FailureThresholds  []FailureThreshold
	DefaultMaxFailures int

	// PageDelay spaces consecutive page requests.
	PageDelay time.Duration

	// Sequential walk limits.
	SequentialPageSize int
	SequentialMaxPages int
	SequentialMaxRows  int
}

// DefaultPaginationPolicy returns the production pagination policy.
func DefaultPaginationPolicy() PaginationPolicy {
	return PaginationPolicy{
		PageSize:             5000,
		MaxPages:             10,
		MaxRows:              25000,
		PageTimeout:          30 * time.Second,
		PageTimeoutOverrides: map[int]time.Duration{2: 5 * time.Second},
		PageRetry:            orders.PageRetryPolicy(),
		SkipPages:            []int{2},
		StoppingRules: []CoverageStoppingRule{
			{MinRows: 500, MinCoverage: 100},
			{MinRows: 2000, MinCoverage: 95},
			{MinRows: 5000, MinCoverage: 85},
		},
		StallMinRows:   10,
		StallAfterPage: 3,
		StallPages:     2,
		FailureThresholds: []FailureThreshold{
			{MinRows: 10000, MaxFailures: 1},
			{MinRows: 5000, MaxFailures: 2},
		},
		DefaultMaxFailures: 3,
		PageDelay:          100 * time.Millisecond,
		SequentialPageSize: 5000,
		SequentialMaxPages: 50,
		SequentialMaxRows:  50000,
	}
}

// timeoutFor returns the deadline applied to a single page request.
func (p PaginationPolicy) timeoutFor(page int) time.Duration {
	if d, ok := p.PageTimeoutOverrides[page]; ok && d > 0 {
		return d
	}
	if p.PageTimeout > 0 {
		return p.PageTimeout
	}
	return 30 * time.Second
}

// maxFailures returns the consecutive-failure budget for the rows held.
func (p PaginationPolicy) maxFailures(rows int) int {
	for _, t := range p.FailureThresholds {
		if rows > t.MinRows {
			return t.MaxFailures
		}
	}
	if p.DefaultMaxFailures > 0 {
		return p.DefaultMaxFailures
	}
	return 3
}

// shouldStop returns the first stopping rule matched by rows and coverage.
func (p PaginationPolicy) shouldStop(rows, coverage int) (CoverageStoppingRule, bool) {
	for _, rule := range p.StoppingRules {
		if rows >= rule.MinRows && coverage >= rule.MinCoverage {
			return rule, true
		}
	}
	return CoverageStoppingRule{}, false
}

func (p PaginationPolicy) skipSet() map[int]bool {
	set := make(map[int]bool, len(p.SkipPages))
	for _, page := range p.SkipPages {
		set[page] = true
	}
	return set
}
