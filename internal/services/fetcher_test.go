package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

type pageFunc func(q orders.PageQuery) (*orders.PageEnvelope, error)

// scriptedSource serves pages from fn and records every request.
type scriptedSource struct {
	mu       sync.Mutex
	fn       pageFunc
	requests []orders.PageQuery
}

func (s *scriptedSource) FetchPage(ctx context.Context, q orders.PageQuery) (*orders.PageEnvelope, error) {
	s.mu.Lock()
	s.requests = append(s.requests, q)
	s.mu.Unlock()
	return s.fn(q)
}

func (s *scriptedSource) pages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.requests))
	for _, q := range s.requests {
		out = append(out, q.Page)
	}
	return out
}

func testOrder(id, orderDate string) orders.Order {
	return orders.Order{
		ID:          id,
		OrderNo:     "NO-" + id,
		OrderDate:   orderDate,
		Status:      orders.StatusSubmitted,
		TotalAmount: decimal.NewFromInt(100),
	}
}

// pageOf builds n orders for page on the given day, with IDs unique per page.
func pageOf(page, n int, day string) []orders.Order {
	list := make([]orders.Order, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, testOrder(fmt.Sprintf("p%d-%d", page, i), day+"T08:00:00Z"))
	}
	return list
}

func okEnvelope(page, totalPages int, hasNext bool, data []orders.Order) *orders.PageEnvelope {
	return &orders.PageEnvelope{
		Success: true,
		Data: orders.Page{
			Data: data,
			Pagination: &orders.Pagination{
				Page:       page,
				PageSize:   len(data),
				Total:      totalPages * len(data),
				TotalPages: totalPages,
				HasNext:    hasNext,
				HasPrev:    page > 1,
			},
		},
	}
}

func testPolicy() PaginationPolicy {
	p := DefaultPaginationPolicy()
	p.PageDelay = 0
	p.PageRetry = orders.NoRetryPolicy()
	return p
}

var weekRange = orders.DateRange{From: "2026-01-01", To: "2026-01-07"}

func TestFetchAll_PageCapWithSkippedPage(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return okEnvelope(q.Page, 100, true, pageOf(q.Page, 20, "2026-01-01")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 4, 5, 6, 7, 8, 9, 10}, src.pages())
	assert.Equal(t, 9, result.FetchedPages)
	assert.Len(t, result.Orders, 180)
	assert.Equal(t, StopPageCap, result.StopReason)
	assert.Equal(t, 14, result.Completeness.Coverage)
}

func TestFetchAll_PassesRangeAndPageSize(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return okEnvelope(1, 1, false, pageOf(1, 3, "2026-01-02")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	require.Len(t, src.requests, 1)
	assert.Equal(t, 5000, src.requests[0].PageSize)
	assert.Equal(t, "2026-01-01", src.requests[0].DateFrom)
	assert.Equal(t, "2026-01-07", src.requests[0].DateTo)
	assert.Equal(t, StopSinglePage, result.StopReason)
	assert.Equal(t, 1, result.FetchedPages)
}

func TestFetchAll_StopsWhenCoverageRuleMatches(t *testing.T) {
	day := orders.DateRange{From: "2026-01-01", To: "2026-01-01"}
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return okEnvelope(q.Page, 10, true, pageOf(q.Page, 300, "2026-01-01")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), day, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, src.pages())
	assert.Equal(t, StopCoverage, result.StopReason)
	assert.Len(t, result.Orders, 600)
	assert.True(t, result.Completeness.IsComplete)
}

func TestFetchAll_StopsOnEndOfData(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		if q.Page >= 4 {
			return &orders.PageEnvelope{Success: false, Error: "No more orders"}, nil
		}
		return okEnvelope(q.Page, 10, true, pageOf(q.Page, 20, "2026-01-03")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 4}, src.pages())
	assert.Equal(t, StopEndOfData, result.StopReason)
	assert.Len(t, result.Orders, 40)
}

func TestFetchAll_EmptyFailureIsEndOfData(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		if q.Page >= 3 {
			return &orders.PageEnvelope{Success: false}, nil
		}
		return okEnvelope(q.Page, 10, true, pageOf(q.Page, 20, "2026-01-03")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)
	assert.Equal(t, StopEndOfData, result.StopReason)
}

func TestFetchAll_StopsAfterConsecutiveFailures(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		if q.Page > 1 {
			return nil, orders.NewUpstreamError(502)
		}
		return okEnvelope(1, 10, true, pageOf(1, 20, "2026-01-03")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 4, 5}, src.pages())
	assert.Equal(t, StopFailures, result.StopReason)
	assert.Equal(t, 1, result.FetchedPages)
	assert.Len(t, result.Orders, 20)
}

func TestFetchAll_FailureBudgetShrinksWithRows(t *testing.T) {
	policy := testPolicy()
	policy.MaxRows = 100000
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		if q.Page > 1 {
			return nil, orders.NewNetworkError(errors.New("connection reset"))
		}
		return okEnvelope(1, 10, true, pageOf(1, 10001, "2026-01-03")), nil
	}}
	f := NewFetcher(src, policy, nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, src.pages())
	assert.Equal(t, StopFailures, result.StopReason)
}

func TestFetchAll_FailureCounterResetsOnSuccess(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		switch q.Page {
		case 3, 4, 6, 7:
			return nil, orders.NewTimeoutError(context.DeadlineExceeded)
		}
		return okEnvelope(q.Page, 8, q.Page < 8, pageOf(q.Page, 20, "2026-01-03")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 4, 5, 6, 7, 8}, src.pages())
	assert.Equal(t, StopNoMorePages, result.StopReason)
	assert.Equal(t, 3, result.FetchedPages)
}

func TestFetchAll_FirstPageFailure(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return orders.NewErrorEnvelope(q, orders.NewUpstreamError(500)), orders.NewUpstreamError(500)
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrFirstPageFailed))
	assert.True(t, errors.Is(err, orders.ErrUpstream))
	assert.Empty(t, result.Orders)
	assert.Equal(t, 0, result.Completeness.Coverage)
	assert.Equal(t, 7, result.Completeness.TotalDays)
}

func TestFetchAll_FirstPageUnsuccessfulEnvelope(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return &orders.PageEnvelope{Success: false, Error: "Authentication failed"}, nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	_, err := f.FetchAll(context.Background(), weekRange, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFirstPageFailed))
}

func TestFetchAll_StallsOnThinPages(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		n := 20
		if q.Page > 3 {
			n = 2
		}
		return okEnvelope(q.Page, 10, true, pageOf(q.Page, n, "2026-01-03")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 4, 5}, src.pages())
	assert.Equal(t, StopStalled, result.StopReason)
}

func TestFetchAll_DeduplicatesAndDropsInvalidRows(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		rows := pageOf(1, 15, "2026-01-03")
		if q.Page == 1 {
			rows = append(rows, testOrder("", "2026-01-03"))
			return okEnvelope(1, 3, true, rows), nil
		}
		return okEnvelope(q.Page, 3, false, rows), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	assert.Len(t, result.Orders, 15)
	assert.Equal(t, StopNoMorePages, result.StopReason)
}

func TestFetchAll_RespectsRowCap(t *testing.T) {
	policy := testPolicy()
	policy.MaxRows = 50
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return okEnvelope(q.Page, 10, true, pageOf(q.Page, 30, "2026-01-03")), nil
	}}
	f := NewFetcher(src, policy, nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, src.pages())
	assert.Equal(t, StopRowCap, result.StopReason)
	assert.Len(t, result.Orders, 60)
}

func TestFetchAll_ContinuesAfterReturnedPage(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		if q.Page == 1 {
			return okEnvelope(2, 4, true, pageOf(2, 20, "2026-01-03")), nil
		}
		return okEnvelope(q.Page, 4, q.Page < 4, pageOf(q.Page, 20, "2026-01-03")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, src.pages())
	assert.Len(t, result.Orders, 60)
}

func TestFetchAll_ReportsProgress(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return okEnvelope(q.Page, 3, q.Page < 3, pageOf(q.Page, 20, "2026-01-0"+fmt.Sprint(q.Page))), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	var progress []FetchProgress
	_, err := f.FetchAll(context.Background(), weekRange, func(p FetchProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	require.Len(t, progress, 2)
	assert.Equal(t, FetchProgress{Page: 1, MaxPages: 3, Rows: 20, Coverage: 14}, progress[0])
	assert.Equal(t, FetchProgress{Page: 3, MaxPages: 3, Rows: 40, Coverage: 29}, progress[1])
}

func TestFetchAll_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		if q.Page == 3 {
			cancel()
		}
		return okEnvelope(q.Page, 10, true, pageOf(q.Page, 20, "2026-01-03")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result, err := f.FetchAll(ctx, weekRange, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, src.pages())
	assert.Equal(t, StopCancelled, result.StopReason)
	assert.Len(t, result.Orders, 40)
}

func TestFetchAll_AppliesPerPageDeadline(t *testing.T) {
	policy := testPolicy()
	policy.PageTimeout = time.Minute
	var deadlines []time.Duration
	src := &scriptedSource{}
	src.fn = func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return okEnvelope(q.Page, 1, false, pageOf(q.Page, 1, "2026-01-03")), nil
	}
	f := NewFetcher(deadlineSource{src: src, seen: &deadlines}, policy, nil)

	_, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	require.Len(t, deadlines, 1)
	assert.InDelta(t, time.Minute.Seconds(), deadlines[0].Seconds(), 1)
}

type deadlineSource struct {
	src  PageSource
	seen *[]time.Duration
}

func (d deadlineSource) FetchPage(ctx context.Context, q orders.PageQuery) (*orders.PageEnvelope, error) {
	if dl, ok := ctx.Deadline(); ok {
		*d.seen = append(*d.seen, time.Until(dl))
	}
	return d.src.FetchPage(ctx, q)
}

func TestFetchAll_RetriesTransientPageFailure(t *testing.T) {
	policy := testPolicy()
	policy.PageRetry = &orders.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, Factor: 2}
	failed := false
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		if q.Page == 3 && !failed {
			failed = true
			return nil, orders.NewUpstreamError(503)
		}
		return okEnvelope(q.Page, 4, q.Page < 4, pageOf(q.Page, 20, "2026-01-03")), nil
	}}
	f := NewFetcher(src, policy, nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 3, 4}, src.pages())
	assert.Equal(t, 3, result.FetchedPages)
	assert.Len(t, result.Orders, 60)
	assert.Equal(t, StopNoMorePages, result.StopReason)
}

func TestFetchAll_DoesNotRetryPermanentFailure(t *testing.T) {
	policy := testPolicy()
	policy.PageRetry = &orders.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, Factor: 2}
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		if q.Page == 3 {
			return nil, orders.NewUpstreamError(404)
		}
		return okEnvelope(q.Page, 4, q.Page < 4, pageOf(q.Page, 20, "2026-01-03")), nil
	}}
	f := NewFetcher(src, policy, nil)

	_, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, src.pages())
}

func TestFetchAll_EachRetryGetsItsOwnDeadline(t *testing.T) {
	policy := testPolicy()
	policy.PageTimeout = 20 * time.Millisecond
	policy.PageRetry = &orders.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond}
	calls := 0
	src := &scriptedSource{}
	src.fn = func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return okEnvelope(q.Page, 1, false, pageOf(q.Page, 1, "2026-01-03")), nil
	}
	slowOnce := pageSourceFunc(func(ctx context.Context, q orders.PageQuery) (*orders.PageEnvelope, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, orders.NewTimeoutError(ctx.Err())
		}
		return src.FetchPage(ctx, q)
	})
	f := NewFetcher(slowOnce, policy, nil)

	result, err := f.FetchAll(context.Background(), weekRange, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, result.Orders, 1)
}

type pageSourceFunc func(ctx context.Context, q orders.PageQuery) (*orders.PageEnvelope, error)

func (fn pageSourceFunc) FetchPage(ctx context.Context, q orders.PageQuery) (*orders.PageEnvelope, error) {
	return fn(ctx, q)
}

func TestPaginationPolicy_Helpers(t *testing.T) {
	p := DefaultPaginationPolicy()

	assert.Equal(t, 5*time.Second, p.timeoutFor(2))
	assert.Equal(t, 30*time.Second, p.timeoutFor(3))

	assert.Equal(t, 1, p.maxFailures(10001))
	assert.Equal(t, 2, p.maxFailures(5001))
	assert.Equal(t, 3, p.maxFailures(5000))

	_, ok := p.shouldStop(499, 100)
	assert.False(t, ok)
	rule, ok := p.shouldStop(500, 100)
	assert.True(t, ok)
	assert.Equal(t, 500, rule.MinRows)
	rule, ok = p.shouldStop(5000, 85)
	assert.True(t, ok)
	assert.Equal(t, 5000, rule.MinRows)
	_, ok = p.shouldStop(2500, 90)
	assert.False(t, ok)
}

func TestFetchSequential_WalksUntilNoNextPage(t *testing.T) {
	policy := testPolicy()
	policy.SequentialPageSize = 100
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return okEnvelope(q.Page, 3, q.Page < 3, pageOf(q.Page, 5, "2026-01-03")), nil
	}}
	f := NewFetcher(src, policy, nil)

	result := f.FetchSequential(context.Background(), weekRange)

	assert.Equal(t, []int{1, 2, 3}, src.pages())
	assert.Equal(t, 100, src.requests[0].PageSize)
	assert.Equal(t, 3, result.FetchedPages)
	assert.Len(t, result.Orders, 15)
	assert.Equal(t, StopNoMorePages, result.StopReason)
}

func TestFetchSequential_StopsOnFirstFailure(t *testing.T) {
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		if q.Page == 2 {
			return nil, orders.NewUpstreamError(503)
		}
		return okEnvelope(q.Page, 5, true, pageOf(q.Page, 5, "2026-01-03")), nil
	}}
	f := NewFetcher(src, testPolicy(), nil)

	result := f.FetchSequential(context.Background(), weekRange)

	assert.Equal(t, []int{1, 2}, src.pages())
	assert.Equal(t, 1, result.FetchedPages)
	assert.Len(t, result.Orders, 5)
	assert.Equal(t, StopFailures, result.StopReason)
}

func TestFetchSequential_PageCap(t *testing.T) {
	policy := testPolicy()
	policy.SequentialMaxPages = 4
	src := &scriptedSource{fn: func(q orders.PageQuery) (*orders.PageEnvelope, error) {
		return okEnvelope(q.Page, 100, true, pageOf(q.Page, 5, "2026-01-03")), nil
	}}
	f := NewFetcher(src, policy, nil)

	result := f.FetchSequential(context.Background(), weekRange)

	assert.Equal(t, 4, result.FetchedPages)
	assert.Equal(t, StopPageCap, result.StopReason)
}
