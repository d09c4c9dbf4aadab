package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

type stubLister struct {
	page    *orders.Page
	err     error
	queries []orders.PageQuery
}

func (s *stubLister) ListOrders(ctx context.Context, q orders.PageQuery) (*orders.Page, error) {
	s.queries = append(s.queries, q)
	return s.page, s.err
}

var proxyNow = func() time.Time { return time.Date(2026, 1, 8, 3, 0, 0, 0, time.UTC) }

func TestProxyService_FetchPage_Success(t *testing.T) {
	lister := &stubLister{page: &orders.Page{
		Data:       pageOf(1, 2, "2026-01-03"),
		Pagination: &orders.Pagination{Page: 1, PageSize: 10, Total: 2, TotalPages: 1},
	}}
	svc := NewProxyService(lister, ProxyServiceConfig{Now: proxyNow}, nil)

	env, err := svc.FetchPage(context.Background(), orders.PageQuery{Status: orders.AllStatuses, Channel: orders.AllChannels})
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.False(t, env.Mock)
	assert.Len(t, env.Data.Data, 2)

	require.Len(t, lister.queries, 1)
	assert.Equal(t, 1, lister.queries[0].Page)
	assert.Equal(t, 10, lister.queries[0].PageSize)
	assert.Empty(t, lister.queries[0].Status)
	assert.Empty(t, lister.queries[0].Channel)
}

func TestProxyService_FetchPage_ErrorEnvelope(t *testing.T) {
	lister := &stubLister{err: orders.NewUpstreamError(500)}
	svc := NewProxyService(lister, ProxyServiceConfig{Now: proxyNow}, nil)

	env, err := svc.FetchPage(context.Background(), orders.PageQuery{Page: 3, PageSize: 50})
	require.Error(t, err)

	assert.False(t, env.Success)
	assert.Equal(t, "API Error: 500 - Internal Server Error", env.Error)
	assert.Empty(t, env.Data.Data)
	require.NotNil(t, env.Data.Pagination)
	assert.Equal(t, 3, env.Data.Pagination.Page)
	assert.Equal(t, 50, env.Data.Pagination.PageSize)
	assert.Zero(t, env.Data.Pagination.Total)
	assert.False(t, env.Data.Pagination.HasNext)
}

func TestProxyService_FetchPage_EmptyWithoutDevModeIsNotMocked(t *testing.T) {
	lister := &stubLister{page: &orders.Page{Data: []orders.Order{}}}
	svc := NewProxyService(lister, ProxyServiceConfig{Now: proxyNow}, nil)

	env, err := svc.FetchPage(context.Background(), orders.PageQuery{})
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.False(t, env.Mock)
	assert.Empty(t, env.Data.Data)
}

func TestProxyService_FetchPage_DevModeMocksEmptyAndFailures(t *testing.T) {
	for name, lister := range map[string]*stubLister{
		"empty":   {page: &orders.Page{Data: []orders.Order{}}},
		"failure": {err: orders.NewAuthError("Authentication failed", errors.New("bad credentials"))},
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewProxyService(lister, ProxyServiceConfig{DevMode: true, Now: proxyNow}, nil)

			env, err := svc.FetchPage(context.Background(), orders.PageQuery{DateFrom: "2026-01-01", DateTo: "2026-01-07"})
			require.NoError(t, err)

			assert.True(t, env.Success)
			assert.True(t, env.Mock)
			assert.Len(t, env.Data.Data, MockOrderCount)
			assert.False(t, env.Data.Pagination.HasNext)
			assert.True(t, ValidateCoverage(env.Data.Data, weekRange, nil).IsComplete)
		})
	}
}

func TestProxyService_FetchSummary_SynthesizesPagination(t *testing.T) {
	rows := pageOf(1, 3, "2026-01-03")
	rows[0].SLAInfo = &orders.RawSLAInfo{TargetMinutes: 300, ElapsedMinutes: 120, Status: orders.SLAStatusOnTrack}
	lister := &stubLister{page: &orders.Page{Data: rows}}
	svc := NewProxyService(lister, ProxyServiceConfig{Now: proxyNow}, nil)

	env, err := svc.FetchSummary(context.Background(), orders.PageQuery{})
	require.NoError(t, err)

	assert.True(t, env.Success)
	require.Len(t, env.Data.Data, 3)
	assert.Equal(t, "p1-0", env.Data.Data[0].ID)
	assert.Equal(t, 300.0, env.Data.Data[0].SLAInfo.TargetMinutes)
	assert.Zero(t, env.Data.Data[1].SLAInfo.TargetMinutes)
	assert.Equal(t, &orders.Pagination{Page: 1, PageSize: 3, Total: 3, TotalPages: 1}, env.Data.Pagination)
}

func TestProxyService_FetchSummary_Failure(t *testing.T) {
	lister := &stubLister{err: orders.NewTimeoutError(context.DeadlineExceeded)}
	svc := NewProxyService(lister, ProxyServiceConfig{Now: proxyNow}, nil)

	env, err := svc.FetchSummary(context.Background(), orders.PageQuery{Page: 2, PageSize: 20})
	require.Error(t, err)

	assert.False(t, env.Success)
	assert.Equal(t, "Request timeout", env.Error)
	assert.Empty(t, env.Data.Data)
	assert.Equal(t, 2, env.Data.Pagination.Page)
}

func TestGenerateMockOrders(t *testing.T) {
	list := GenerateMockOrders(weekRange, proxyNow())

	require.Len(t, list, MockOrderCount)
	assert.Equal(t, GenerateMockOrders(weekRange, proxyNow()), list)

	tol := 0
	ids := map[string]bool{}
	for _, o := range list {
		ids[o.ID] = true
		assert.True(t, o.TotalAmount.GreaterThanOrEqual(decimal.NewFromInt(400)))
		assert.True(t, o.TotalAmount.LessThanOrEqual(decimal.NewFromInt(1200)))
		if o.DeliveryType != o.Channel {
			tol++
		}
	}
	assert.Len(t, ids, MockOrderCount)
	assert.InDelta(t, 0.6, float64(tol)/float64(MockOrderCount), 0.02)
}

func TestGenerateMockOrders_InvalidRangeUsesLastWeek(t *testing.T) {
	list := GenerateMockOrders(orders.DateRange{}, proxyNow())

	cov := ValidateCoverage(list, orders.DefaultDateRange(proxyNow()), nil)
	assert.True(t, cov.IsComplete)
}

func TestProxyService_FetchOrderDetails(t *testing.T) {
	rows := pageOf(1, 3, "2026-01-03")
	rows[2].OrderNo = "GM-7781"
	lister := &stubLister{page: &orders.Page{Data: rows}}
	svc := NewProxyService(lister, ProxyServiceConfig{Now: proxyNow}, nil)

	env, err := svc.FetchOrderDetails(context.Background(), "p1-1")
	require.NoError(t, err)
	assert.True(t, env.Success)
	require.NotNil(t, env.Data)
	assert.Equal(t, "p1-1", env.Data.ID)

	require.Len(t, lister.queries, 1)
	assert.Equal(t, orders.PageQuery{Page: 1, PageSize: DetailsPageSize, Search: "p1-1"}, lister.queries[0])

	env, err = svc.FetchOrderDetails(context.Background(), "GM-7781")
	require.NoError(t, err)
	require.NotNil(t, env.Data)
	assert.Equal(t, "p1-2", env.Data.ID)
}

func TestProxyService_FetchOrderDetails_NoExactMatch(t *testing.T) {
	lister := &stubLister{page: &orders.Page{Data: pageOf(1, 2, "2026-01-03")}}
	svc := NewProxyService(lister, ProxyServiceConfig{Now: proxyNow}, nil)

	env, err := svc.FetchOrderDetails(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Nil(t, env.Data)
}

func TestProxyService_FetchOrderDetails_Error(t *testing.T) {
	lister := &stubLister{err: orders.NewTimeoutError(context.DeadlineExceeded)}
	svc := NewProxyService(lister, ProxyServiceConfig{Now: proxyNow, DevMode: true}, nil)

	env, err := svc.FetchOrderDetails(context.Background(), "p1-0")
	require.Error(t, err)
	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	assert.Equal(t, "Request timeout", env.Error)
}
