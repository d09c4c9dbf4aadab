package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// ProxyBackend serves single pages of the merchant order list.
type ProxyBackend interface {
	FetchPage(ctx context.Context, q orders.PageQuery) (*orders.PageEnvelope, error)
	FetchSummary(ctx context.Context, q orders.PageQuery) (*orders.SummaryEnvelope, error)
	FetchOrderDetails(ctx context.Context, id string) (*orders.DetailsEnvelope, error)
}

// ProxyHandler exposes the order proxy routes. Every response is HTTP 200;
// the envelope's success flag carries the outcome.
type ProxyHandler struct {
	proxy  ProxyBackend
	logger *zap.Logger
}

// NewProxyHandler creates a new ProxyHandler
func NewProxyHandler(proxy ProxyBackend, logger *zap.Logger) *ProxyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProxyHandler{
		proxy:  proxy,
		logger: logger,
	}
}

// External returns one page of orders in the proxy envelope
// GET /api/orders/external
func (h *ProxyHandler) External(c *gin.Context) {
	q := pageQuery(c)

	env, err := h.proxy.FetchPage(c.Request.Context(), q)
	if err != nil {
		h.logger.Warn("order proxy request failed",
			zap.Int("page", q.Page),
			zap.String("kind", orders.KindOf(err).String()),
			zap.Error(err),
		)
	}
	if env == nil {
		env = orders.NewErrorEnvelope(q.Normalize(), err)
	}

	c.JSON(http.StatusOK, env)
}

// Summary returns one page of orders projected onto the summary fields
// GET /api/orders/summary
func (h *ProxyHandler) Summary(c *gin.Context) {
	q := pageQuery(c)

	env, err := h.proxy.FetchSummary(c.Request.Context(), q)
	if err != nil {
		h.logger.Warn("order summary request failed",
			zap.Int("page", q.Page),
			zap.String("kind", orders.KindOf(err).String()),
			zap.Error(err),
		)
	}
	if env == nil {
		n := q.Normalize()
		env = &orders.SummaryEnvelope{Error: orders.ErrorMessage(err)}
		env.Data.Data = []orders.OrderSummary{}
		env.Data.Pagination = orders.EmptyPagination(n.Page, n.PageSize)
	}

	c.JSON(http.StatusOK, env)
}

// Details returns a single order looked up by id or order number
// GET /api/orders/details/:id
func (h *ProxyHandler) Details(c *gin.Context) {
	id := c.Param("id")

	env, err := h.proxy.FetchOrderDetails(c.Request.Context(), id)
	if err != nil {
		h.logger.Warn("order details request failed",
			zap.String("order_id", id),
			zap.String("kind", orders.KindOf(err).String()),
			zap.Error(err),
		)
	}
	if env == nil {
		env = &orders.DetailsEnvelope{Error: orders.ErrorMessage(err)}
	}

	c.JSON(http.StatusOK, env)
}

// pageQuery reads the proxy query parameters. Invalid page numbers fall back
// to the defaults.
func pageQuery(c *gin.Context) orders.PageQuery {
	q := orders.PageQuery{
		Page:     1,
		PageSize: 10,
		Status:   c.Query("status"),
		Channel:  c.Query("channel"),
		Search:   c.Query("search"),
		DateFrom: c.Query("dateFrom"),
		DateTo:   c.Query("dateTo"),
	}

	if pageStr := c.Query("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			q.Page = page
		}
	}
	if pageSizeStr := c.Query("pageSize"); pageSizeStr != "" {
		if pageSize, err := strconv.Atoi(pageSizeStr); err == nil && pageSize > 0 {
			q.PageSize = pageSize
		}
	}

	return q
}
