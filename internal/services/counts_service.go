package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// ErrCountsUnavailable is returned when no page of recent orders could be read.
var ErrCountsUnavailable = errors.New("order counts unavailable")

// CountsResult is a computed or cached set of order counts.
type CountsResult struct {
	Counts    OrderCounts `json:"counts"`
	Cached    bool        `json:"cached"`
	Timestamp time.Time   `json:"timestamp"`
}

// CountsService computes SLA counts over the last seven days with a short cache.
type CountsService struct {
	fetcher *Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	group   singleflight.Group

	mu       sync.Mutex
	cached   *OrderCounts
	cachedAt time.Time
}

// CountsServiceConfig holds configuration for the counts service.
type CountsServiceConfig struct {
	TTL      time.Duration
	PageSize int
	MaxPages int
	Now      func() time.Time
}

// NewCountsService creates a counts service reading pages from source.
func NewCountsService(source PageSource, cfg CountsServiceConfig, logger *zap.Logger) *CountsService {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := DefaultPaginationPolicy()
	policy.SequentialPageSize = cfg.PageSize
	policy.SequentialMaxPages = cfg.MaxPages
	policy.SequentialMaxRows = cfg.PageSize * cfg.MaxPages
	policy.PageRetry = orders.NoRetryPolicy()

	return &CountsService{
		fetcher: NewFetcher(source, policy, logger),
		ttl:     cfg.TTL,
		now:     cfg.Now,
		logger:  logger,
	}
}

// Counts returns the cached counts while fresh, otherwise recomputes them.
// Concurrent recomputations are shared; a caller whose ctx ends stops
// waiting without cancelling the walk for the others.
func (s *CountsService) Counts(ctx context.Context) (*CountsResult, error) {
	if res, ok := s.fresh(); ok {
		return res, nil
	}

	ch := s.group.DoChan("counts", func() (interface{}, error) {
		return s.compute(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CountsResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CountsService) fresh() (*CountsResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != nil && now.Sub(s.cachedAt) < s.ttl {
		return &CountsResult{Counts: *s.cached, Cached: true, Timestamp: now}, true
	}
	return nil, false
}

func (s *CountsService) compute(ctx context.Context) (*CountsResult, error) {
	now := s.now()
	result := s.fetcher.FetchSequential(ctx, orders.DefaultDateRange(now))
	if result.FetchedPages == 0 {
		return nil, ErrCountsUnavailable
	}

	counts := CountOrders(result.Orders)

	s.mu.Lock()
	s.cached = &counts
	s.cachedAt = now
	s.mu.Unlock()

	s.logger.Debug("order counts computed",
		zap.Int("orders", counts.Total),
		zap.Int("breach", counts.Breach),
		zap.Int("near_breach", counts.NearBreach),
	)
	return &CountsResult{Counts: counts, Timestamp: now}, nil
}
