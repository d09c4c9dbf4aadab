package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// OrderLister fetches raw pages from the merchant-order API.
type OrderLister interface {
	ListOrders(ctx context.Context, q orders.PageQuery) (*orders.Page, error)
}

// ProxyServiceConfig holds configuration for the proxy service.
type ProxyServiceConfig struct {
	// DevMode enables synthetic orders when the upstream is empty or failing.
	// It must only be set in development.
	DevMode bool
	Now     func() time.Time
}

// ProxyService turns upstream pages into the proxy envelope.
type ProxyService struct {
	lister  OrderLister
	devMode bool
	now     func() time.Time
	logger  *zap.Logger
}

// NewProxyService creates a proxy service.
func NewProxyService(lister OrderLister, cfg ProxyServiceConfig, logger *zap.Logger) *ProxyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.DevMode {
		logger.Warn("development mode: mock orders are served when the order API is empty or failing")
	}
	return &ProxyService{
		lister:  lister,
		devMode: cfg.DevMode,
		now:     now,
		logger:  logger,
	}
}

// FetchPage fetches one page and wraps it in the envelope. On failure the
// envelope carries success:false with an empty page and the error is also
// returned so in-process callers can classify it.
func (s *ProxyService) FetchPage(ctx context.Context, q orders.PageQuery) (*orders.PageEnvelope, error) {
	q = q.Normalize()

	page, err := s.lister.ListOrders(ctx, q)
	if err != nil {
		if s.devMode {
			s.logger.Warn("order API failed, serving mock orders",
				zap.Int("page", q.Page),
				zap.Error(err),
			)
			return s.mockEnvelope(q), nil
		}
		s.logger.Warn("order API request failed",
			zap.Int("page", q.Page),
			zap.String("kind", orders.KindOf(err).String()),
			zap.Error(err),
		)
		return orders.NewErrorEnvelope(q, err), err
	}

	if len(page.Data) == 0 && s.devMode {
		return s.mockEnvelope(q), nil
	}

	return &orders.PageEnvelope{Success: true, Data: *page}, nil
}

// FetchSummary fetches one page and projects it onto OrderSummary rows.
func (s *ProxyService) FetchSummary(ctx context.Context, q orders.PageQuery) (*orders.SummaryEnvelope, error) {
	env, err := s.FetchPage(ctx, q)

	out := &orders.SummaryEnvelope{Success: env.Success, Error: env.Error, Mock: env.Mock}
	out.Data.Data = make([]orders.OrderSummary, 0, len(env.Data.Data))
	for _, o := range env.Data.Data {
		out.Data.Data = append(out.Data.Data, orders.Summarize(o))
	}

	out.Data.Pagination = env.Data.Pagination
	if out.Data.Pagination == nil {
		n := len(out.Data.Data)
		out.Data.Pagination = &orders.Pagination{Page: 1, PageSize: n, Total: n, TotalPages: 1}
	}
	return out, err
}

// DetailsPageSize is the page size used when searching for a single order.
const DetailsPageSize = 1000

// FetchOrderDetails searches the order list for id and returns the row whose
// id or order number equals it exactly. A search without a match is a
// success with no data.
func (s *ProxyService) FetchOrderDetails(ctx context.Context, id string) (*orders.DetailsEnvelope, error) {
	page, err := s.lister.ListOrders(ctx, orders.PageQuery{
		Page:     1,
		PageSize: DetailsPageSize,
		Search:   id,
	})
	if err != nil {
		s.logger.Warn("order details request failed",
			zap.String("order_id", id),
			zap.String("kind", orders.KindOf(err).String()),
			zap.Error(err),
		)
		return &orders.DetailsEnvelope{Error: orders.ErrorMessage(err)}, err
	}

	env := &orders.DetailsEnvelope{Success: true}
	for i := range page.Data {
		if page.Data[i].ID == id || page.Data[i].OrderNo == id {
			env.Data = &page.Data[i]
			break
		}
	}
	s.logger.Debug("order details lookup",
		zap.String("order_id", id),
		zap.Int("candidates", len(page.Data)),
		zap.Bool("found", env.Data != nil),
	)
	return env, nil
}

func (s *ProxyService) mockEnvelope(q orders.PageQuery) *orders.PageEnvelope {
	rows := GenerateMockOrders(orders.DateRange{From: q.DateFrom, To: q.DateTo}, s.now())
	return &orders.PageEnvelope{
		Success: true,
		Mock:    true,
		Data: orders.Page{
			Data: rows,
			Pagination: &orders.Pagination{
				Page:       1,
				PageSize:   len(rows),
				Total:      len(rows),
				TotalPages: 1,
			},
		},
	}
}
