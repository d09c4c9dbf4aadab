package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
	"github.com/niaga-platform/service-order-dashboard/internal/events"
	"github.com/niaga-platform/service-order-dashboard/internal/metrics"
)

// Sources of a FetchOutcome.
const (
	SourceCache      = "cache"
	SourceSnapshot   = "snapshot"
	SourceUpstream   = "upstream"
	SourceStaleCache = "stale-cache"
	SourceNone       = "none"
)

// Cache tiers reported to metrics.
const (
	tierMemory   = "memory"
	tierSnapshot = "snapshot"
)

// EventPublisher broadcasts dashboard events to other instances.
type EventPublisher interface {
	PublishFetchCompleted(event *events.FetchCompletedEvent) error
	PublishCacheInvalidated(event *events.CacheInvalidatedEvent) error
}

// FetchOutcome is the orders available for a date range and where they came from.
type FetchOutcome struct {
	Orders       []orders.Order   `json:"orders"`
	Completeness Completeness     `json:"completeness"`
	DateRange    orders.DateRange `json:"dateRange"`
	Source       string           `json:"source"`
	Cached       bool             `json:"cached"`
	Shared       bool             `json:"shared"`
	FetchedPages int              `json:"fetchedPages"`
	FetchedAt    time.Time        `json:"fetchedAt"`
	Warning      string           `json:"warning,omitempty"`
}

// OverviewResult is the dashboard overview and the fetch it was built from.
type OverviewResult struct {
	Overview
	DateRange    orders.DateRange `json:"dateRange"`
	Completeness Completeness     `json:"completeness"`
	Source       string           `json:"source"`
	FetchedAt    time.Time        `json:"fetchedAt"`
	Warning      string           `json:"warning,omitempty"`
}

// DashboardServiceConfig holds configuration for the dashboard service.
type DashboardServiceConfig struct {
	// InstanceID identifies this process in broadcast events.
	InstanceID string
	// StaleFactor multiplies the cache TTL to give the fallback window.
	StaleFactor int
	Now         func() time.Time
}

// DashboardService serves cache-aware order fetches and the views built on them.
type DashboardService struct {
	queue       *RequestQueue
	fetcher     *Fetcher
	cache       *OrdersCache
	snapshots   SnapshotStore
	publisher   EventPublisher
	instanceID  string
	staleFactor int
	now         func() time.Time
	logger      *zap.Logger
}

// NewDashboardService creates a dashboard service. snapshots and publisher
// are optional.
func NewDashboardService(
	queue *RequestQueue,
	fetcher *Fetcher,
	cache *OrdersCache,
	snapshots SnapshotStore,
	publisher EventPublisher,
	cfg DashboardServiceConfig,
	logger *zap.Logger,
) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StaleFactor <= 0 {
		cfg.StaleFactor = 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DashboardService{
		queue:       queue,
		fetcher:     fetcher,
		cache:       cache,
		snapshots:   snapshots,
		publisher:   publisher,
		instanceID:  cfg.InstanceID,
		staleFactor: cfg.StaleFactor,
		now:         cfg.Now,
		logger:      logger,
	}
}

// FetchOrders returns the orders for r. Concurrent calls for the same range
// share one fetch. A fresh and complete cache entry is served without I/O.
// When the upstream fails or returns nothing, an entry up to StaleFactor
// times the TTL old is served instead; failing that, an empty outcome with a
// warning is returned. The error is non-nil only for an invalid range or a
// cancelled caller.
func (s *DashboardService) FetchOrders(ctx context.Context, r orders.DateRange) (*FetchOutcome, error) {
	if _, err := r.Days(); err != nil {
		return nil, err
	}

	v, shared, err := s.queue.Execute(ctx, "fetch-orders-"+r.Key(), func(ctx context.Context) (interface{}, error) {
		return s.load(ctx, r)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("orders fetch failed, trying stale cache",
			zap.String("date_from", r.From),
			zap.String("date_to", r.To),
			zap.Error(err),
		)
		return s.fallback(r, fetchWarning(err)), nil
	}

	outcome := *v.(*FetchOutcome)
	outcome.Shared = shared
	if len(outcome.Orders) == 0 {
		return s.fallback(r, "order API returned no orders for the requested range"), nil
	}
	return &outcome, nil
}

func (s *DashboardService) load(ctx context.Context, r orders.DateRange) (*FetchOutcome, error) {
	if entry, ok := s.cache.Get(r); ok {
		cov := ValidateCoverage(entry.Orders, r, s.logger)
		if cov.IsComplete {
			metrics.RecordCacheLookup(tierMemory, metrics.CacheHit)
			return outcomeFromEntry(entry, cov, SourceCache), nil
		}
		s.logger.Debug("cached orders incomplete, refetching",
			zap.Int("coverage", cov.Coverage),
			zap.Strings("missing_days", cov.MissingDays),
		)
	}
	metrics.RecordCacheLookup(tierMemory, metrics.CacheMiss)

	if out := s.loadSnapshot(ctx, r); out != nil {
		return out, nil
	}

	start := s.now()
	result, err := s.fetcher.FetchAll(ctx, r, func(p FetchProgress) {
		s.logger.Debug("orders fetch progress",
			zap.Int("page", p.Page),
			zap.Int("max_pages", p.MaxPages),
			zap.Int("rows", p.Rows),
			zap.Int("coverage", p.Coverage),
		)
	})
	if err != nil {
		return nil, err
	}

	if len(result.Orders) > 0 {
		entry := s.cache.Set(r, result.Orders, result.FetchedPages)
		s.storeSnapshot(ctx, entry)
		s.publishFetchCompleted(r, result, s.now().Sub(start))
	}

	return &FetchOutcome{
		Orders:       result.Orders,
		Completeness: result.Completeness,
		DateRange:    r,
		Source:       SourceUpstream,
		FetchedPages: result.FetchedPages,
		FetchedAt:    s.now(),
	}, nil
}

func (s *DashboardService) loadSnapshot(ctx context.Context, r orders.DateRange) *FetchOutcome {
	if s.snapshots == nil {
		return nil
	}

	entry, err := s.snapshots.Get(ctx, r)
	if err != nil {
		s.logger.Warn("snapshot lookup failed", zap.Error(err))
		return nil
	}
	if entry == nil || entry.Age(s.now()) >= s.cache.TTL() {
		metrics.RecordCacheLookup(tierSnapshot, metrics.CacheMiss)
		return nil
	}

	cov := ValidateCoverage(entry.Orders, r, s.logger)
	if !cov.IsComplete {
		metrics.RecordCacheLookup(tierSnapshot, metrics.CacheMiss)
		return nil
	}

	metrics.RecordCacheLookup(tierSnapshot, metrics.CacheHit)
	s.cache.Put(entry)
	return outcomeFromEntry(entry, cov, SourceSnapshot)
}

func (s *DashboardService) storeSnapshot(ctx context.Context, entry *CacheEntry) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Set(ctx, entry); err != nil {
		s.logger.Warn("failed to store orders snapshot", zap.Error(err))
	}
}

func (s *DashboardService) publishFetchCompleted(r orders.DateRange, result *FetchResult, took time.Duration) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishFetchCompleted(&events.FetchCompletedEvent{
		InstanceID:  s.instanceID,
		DateFrom:    r.From,
		DateTo:      r.To,
		Orders:      len(result.Orders),
		Pages:       result.FetchedPages,
		Coverage:    result.Completeness.Coverage,
		MissingDays: result.Completeness.MissingDays,
		StopReason:  result.StopReason,
		DurationMs:  took.Milliseconds(),
		Timestamp:   s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish fetch completed event", zap.Error(err))
	}
}

// fallback serves a stale entry for r, or an empty outcome carrying warning.
func (s *DashboardService) fallback(r orders.DateRange, warning string) *FetchOutcome {
	maxAge := s.cache.TTL() * time.Duration(s.staleFactor)
	if entry, ok := s.cache.GetStale(r, maxAge); ok {
		metrics.RecordCacheLookup(tierMemory, metrics.CacheStale)
		s.logger.Info("serving stale orders",
			zap.String("date_from", r.From),
			zap.String("date_to", r.To),
			zap.Duration("age", entry.Age(s.now())),
		)
		out := outcomeFromEntry(entry, ValidateCoverage(entry.Orders, r, s.logger), SourceStaleCache)
		out.Warning = warning
		return out
	}

	return &FetchOutcome{
		Orders:       []orders.Order{},
		Completeness: ValidateCoverage(nil, r, s.logger),
		DateRange:    r,
		Source:       SourceNone,
		FetchedAt:    s.now(),
		Warning:      warning,
	}
}

// Overview builds the dashboard views for r.
func (s *DashboardService) Overview(ctx context.Context, r orders.DateRange) (*OverviewResult, error) {
	outcome, err := s.FetchOrders(ctx, r)
	if err != nil {
		return nil, err
	}
	return &OverviewResult{
		Overview:     BuildOverview(outcome.Orders, s.now()),
		DateRange:    r,
		Completeness: outcome.Completeness,
		Source:       outcome.Source,
		FetchedAt:    outcome.FetchedAt,
		Warning:      outcome.Warning,
	}, nil
}

// Alerts returns today's SLA alerts. It reads the default seven-day range so
// it shares the dashboard's cache entry.
func (s *DashboardService) Alerts(ctx context.Context) (*OrderAlerts, error) {
	outcome, err := s.FetchOrders(ctx, orders.DefaultDateRange(s.now()))
	if err != nil {
		return nil, err
	}
	alerts := ProcessOrderAlerts(outcome.Orders, s.now())
	return &alerts, nil
}

// Invalidate drops cached orders for r, or every range when r is nil, in
// memory and in the snapshot store, and tells other instances to do the same.
func (s *DashboardService) Invalidate(ctx context.Context, r *orders.DateRange, reason string) error {
	s.invalidateLocal(r)

	var errs []error
	if s.snapshots != nil {
		var err error
		if r == nil {
			err = s.snapshots.Clear(ctx)
		} else {
			err = s.snapshots.Invalidate(ctx, *r)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if s.publisher != nil {
		event := &events.CacheInvalidatedEvent{
			InstanceID: s.instanceID,
			Reason:     reason,
			Timestamp:  s.now().UTC(),
		}
		if r != nil {
			event.DateFrom, event.DateTo = r.From, r.To
		}
		if err := s.publisher.PublishCacheInvalidated(event); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cache invalidation incomplete: %w", err)
	}
	return nil
}

// HandleCacheInvalidated applies an invalidation broadcast by another
// instance. Events from this instance are ignored.
func (s *DashboardService) HandleCacheInvalidated(event *events.CacheInvalidatedEvent) error {
	if event.InstanceID != "" && event.InstanceID == s.instanceID {
		return nil
	}
	if event.AllRanges() {
		s.invalidateLocal(nil)
		return nil
	}
	s.invalidateLocal(&orders.DateRange{From: event.DateFrom, To: event.DateTo})
	return nil
}

func (s *DashboardService) invalidateLocal(r *orders.DateRange) {
	if r == nil {
		s.cache.Clear()
		s.logger.Info("orders cache cleared")
		return
	}
	s.cache.Invalidate(*r)
	s.logger.Info("orders cache invalidated",
		zap.String("date_from", r.From),
		zap.String("date_to", r.To),
	)
}

// Breaker returns the upstream circuit breaker state.
func (s *DashboardService) Breaker() BreakerSnapshot {
	return s.queue.Breaker().Snapshot()
}

func outcomeFromEntry(entry *CacheEntry, cov Completeness, source string) *FetchOutcome {
	return &FetchOutcome{
		Orders:       entry.Orders,
		Completeness: cov,
		DateRange:    entry.DateRange,
		Source:       source,
		Cached:       true,
		FetchedPages: entry.FetchedPages,
		FetchedAt:    entry.Timestamp,
	}
}

func fetchWarning(err error) string {
	if errors.Is(err, ErrCircuitOpen) {
		return "order API temporarily unavailable, retrying shortly"
	}
	return orders.ErrorMessage(err)
}
