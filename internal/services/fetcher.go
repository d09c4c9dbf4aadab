package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
	"github.com/niaga-platform/service-order-dashboard/internal/metrics"
)

// ErrFirstPageFailed is returned by FetchAll when nothing could be fetched.
var ErrFirstPageFailed = errors.New("first page of orders could not be fetched")

// PageSource serves single pages of the order list.
type PageSource interface {
	FetchPage(ctx context.Context, q orders.PageQuery) (*orders.PageEnvelope, error)
}

// FetchProgress is reported after every successful page.
type FetchProgress struct {
	Page     int `json:"page"`
	MaxPages int `json:"maxPages"`
	Rows     int `json:"rows"`
	Coverage int `json:"coverage"`
}

// ProgressFunc receives fetch progress. It may be nil.
type ProgressFunc func(FetchProgress)

// FetchResult is the outcome of a multi-page fetch.
type FetchResult struct {
	Orders       []orders.Order `json:"orders"`
	Completeness Completeness   `json:"completeness"`
	FetchedPages int            `json:"fetchedPages"`
	StopReason   string         `json:"stopReason"`
}

// Stop reasons.
const (
	StopSinglePage    = "single_page"
	StopCoverage      = "coverage_reached"
	StopNoMorePages   = "no_more_pages"
	StopEndOfData     = "end_of_data"
	StopFailures      = "too_many_failures"
	StopStalled       = "stalled"
	StopRowCap        = "row_cap"
	StopPageCap       = "page_cap"
	StopCancelled     = "cancelled"
	StopFirstPageFail = "first_page_failed"
)

var endOfDataPhrases = []string{"no data", "no more", "end of"}

// Fetcher walks the paginated order list for a date range.
type Fetcher struct {
	source PageSource
	policy PaginationPolicy
	logger *zap.Logger
}

// NewFetcher creates a fetcher over source.
func NewFetcher(source PageSource, policy PaginationPolicy, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{source: source, policy: policy, logger: logger}
}

// Policy returns the fetcher's pagination policy.
func (f *Fetcher) Policy() PaginationPolicy {
	return f.policy
}

// FetchAll walks pages until coverage, data or a ceiling stops it. Partial
// failures are absorbed: whatever was accumulated is returned with its
// coverage. The error is non-nil only when the first page failed, in which
// case the result is empty.
func (f *Fetcher) FetchAll(ctx context.Context, r orders.DateRange, progress ProgressFunc) (*FetchResult, error) {
	start := time.Now()
	acc := newOrderAccumulator(f.logger)

	first, err := f.fetchPage(ctx, r, 1, f.policy.PageSize)
	if err == nil && !first.Success {
		err = envelopeError(first)
	}
	if err != nil {
		metrics.RecordPage(metrics.PageFailure)
		f.logger.Warn("first page fetch failed",
			zap.String("date_from", r.From),
			zap.String("date_to", r.To),
			zap.Error(err),
		)
		return &FetchResult{
			Orders:       []orders.Order{},
			Completeness: ValidateCoverage(nil, r, f.logger),
			StopReason:   StopFirstPageFail,
		}, errors.Join(ErrFirstPageFailed, err)
	}
	metrics.RecordPage(metrics.PageSuccess)

	acc.add(first.Data.Data)
	fetched := 1
	pg := first.Data.Pagination
	totalPages := pg.Pages()
	maxPages := min(totalPages, f.policy.MaxPages)

	report := func(page int) Completeness {
		cov := ValidateCoverage(acc.orders, r, f.logger)
		if progress != nil {
			progress(FetchProgress{Page: page, MaxPages: maxPages, Rows: acc.len(), Coverage: cov.Coverage})
		}
		return cov
	}
	report(1)

	if pg == nil || !pg.HasNext || totalPages <= 1 || acc.len() == 0 {
		return f.finish(r, acc, fetched, StopSinglePage, start), nil
	}

	startPage := max(pg.Page+1, 2)
	skip := map[int]bool{}
	if pg.Page <= 1 {
		skip = f.policy.skipSet()
	}

	stopReason := StopPageCap
	failures, stalled := 0, 0
	requested := 0

	for page := startPage; page <= maxPages; page++ {
		if ctx.Err() != nil {
			stopReason = StopCancelled
			break
		}
		if acc.len() >= f.policy.MaxRows {
			stopReason = StopRowCap
			break
		}
		if skip[page] {
			metrics.RecordPage(metrics.PageSkipped)
			f.logger.Debug("skipping page by policy", zap.Int("page", page))
			continue
		}
		if requested > 0 && !sleepCtx(ctx, f.policy.PageDelay) {
			stopReason = StopCancelled
			break
		}
		requested++

		env, err := f.fetchPage(ctx, r, page, f.policy.PageSize)
		if err == nil && !env.Success {
			if isEndOfData(env) {
				metrics.RecordPage(metrics.PageEndOfData)
				f.logger.Debug("upstream signalled end of data", zap.Int("page", page))
				stopReason = StopEndOfData
				break
			}
			err = envelopeError(env)
		}
		if err != nil {
			metrics.RecordPage(metrics.PageFailure)
			failures++
			limit := f.policy.maxFailures(acc.len())
			f.logger.Warn("page fetch failed",
				zap.Int("page", page),
				zap.Int("consecutive_failures", failures),
				zap.Int("failure_limit", limit),
				zap.Error(err),
			)
			if failures >= limit {
				stopReason = StopFailures
				break
			}
			continue
		}

		metrics.RecordPage(metrics.PageSuccess)
		failures = 0
		fetched++
		added := acc.add(env.Data.Data)
		cov := report(page)

		if rule, ok := f.policy.shouldStop(acc.len(), cov.Coverage); ok {
			f.logger.Debug("coverage target reached",
				zap.Int("page", page),
				zap.Int("rows", acc.len()),
				zap.Int("coverage", cov.Coverage),
				zap.Int("rule_min_rows", rule.MinRows),
			)
			stopReason = StopCoverage
			break
		}

		if page > f.policy.StallAfterPage && added < f.policy.StallMinRows {
			stalled++
			if stalled >= max(f.policy.StallPages, 1) {
				stopReason = StopStalled
				break
			}
		} else {
			stalled = 0
		}

		if env.Data.Pagination != nil && !env.Data.Pagination.HasNext {
			stopReason = StopNoMorePages
			break
		}
	}

	return f.finish(r, acc, fetched, stopReason, start), nil
}

// FetchSequential walks pages in order until hasNext is false, the first
// failure, or the sequential page and row caps.
func (f *Fetcher) FetchSequential(ctx context.Context, r orders.DateRange) *FetchResult {
	start := time.Now()
	acc := newOrderAccumulator(f.logger)
	fetched := 0
	stopReason := StopPageCap

	for page := 1; page <= f.policy.SequentialMaxPages; page++ {
		if acc.len() >= f.policy.SequentialMaxRows {
			stopReason = StopRowCap
			break
		}

		env, err := f.fetchPage(ctx, r, page, f.policy.SequentialPageSize)
		if err == nil && !env.Success {
			err = envelopeError(env)
		}
		if err != nil {
			metrics.RecordPage(metrics.PageFailure)
			f.logger.Warn("sequential fetch stopped on failure", zap.Int("page", page), zap.Error(err))
			stopReason = StopFailures
			break
		}

		metrics.RecordPage(metrics.PageSuccess)
		fetched++
		acc.add(env.Data.Data)

		if env.Data.Pagination == nil || !env.Data.Pagination.HasNext {
			stopReason = StopNoMorePages
			break
		}
	}

	return f.finish(r, acc, fetched, stopReason, start)
}

func (f *Fetcher) fetchPage(ctx context.Context, r orders.DateRange, page, pageSize int) (*orders.PageEnvelope, error) {
	q := orders.PageQuery{
		Page:     page,
		PageSize: pageSize,
		DateFrom: r.From,
		DateTo:   r.To,
	}

	var env *orders.PageEnvelope
	attempts, err := f.policy.PageRetry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, f.policy.timeoutFor(page))
		defer cancel()

		var err error
		env, err = f.source.FetchPage(ctx, q)
		return err
	})
	if attempts > 1 {
		f.logger.Debug("page fetched after retries",
			zap.Int("page", page),
			zap.Int("attempts", attempts),
			zap.Bool("succeeded", err == nil),
		)
	}
	return env, err
}

func (f *Fetcher) finish(r orders.DateRange, acc *orderAccumulator, fetched int, reason string, start time.Time) *FetchResult {
	cov := ValidateCoverage(acc.orders, r, f.logger)
	metrics.RecordFetch(acc.len(), cov.Coverage)

	f.logger.Info("orders fetch finished",
		zap.String("date_from", r.From),
		zap.String("date_to", r.To),
		zap.Int("orders", acc.len()),
		zap.Int("pages", fetched),
		zap.Int("coverage", cov.Coverage),
		zap.Strings("missing_days", cov.MissingDays),
		zap.String("stop_reason", reason),
		zap.Int("skipped_invalid", acc.rejected),
		zap.Duration("duration", time.Since(start)),
	)

	return &FetchResult{
		Orders:       acc.orders,
		Completeness: cov,
		FetchedPages: fetched,
		StopReason:   reason,
	}
}

// isEndOfData reports whether a failed envelope means the list is exhausted
// rather than broken.
func isEndOfData(env *orders.PageEnvelope) bool {
	msg := strings.ToLower(env.Error + " " + env.Message)
	for _, phrase := range endOfDataPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return strings.TrimSpace(msg) == "" && len(env.Data.Data) == 0
}

func envelopeError(env *orders.PageEnvelope) error {
	if env.Error != "" {
		return errors.New(env.Error)
	}
	return errors.New("order page request was not successful")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
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

// orderAccumulator collects valid orders, dropping duplicate IDs.
type orderAccumulator struct {
	orders   []orders.Order
	seen     map[string]struct{}
	rejected int
	logger   *zap.Logger
}

func newOrderAccumulator(logger *zap.Logger) *orderAccumulator {
	return &orderAccumulator{
		orders: []orders.Order{},
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// add appends unseen valid orders and returns how many were new.
func (a *orderAccumulator) add(page []orders.Order) int {
	valid, rejected := orders.FilterValid(page)
	for _, err := range rejected {
		a.logger.Debug("skipping invalid order", zap.Error(err))
	}
	a.rejected += len(rejected)

	added := 0
	for _, o := range valid {
		if _, dup := a.seen[o.ID]; dup {
			continue
		}
		a.seen[o.ID] = struct{}{}
		a.orders = append(a.orders, o)
		added++
	}
	return added
}

func (a *orderAccumulator) len() int {
	return len(a.orders)
}
