package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
	"github.com/niaga-platform/service-order-dashboard/internal/services"
)

// DashboardBackend is the cache-aware order source behind the dashboard routes.
type DashboardBackend interface {
	FetchOrders(ctx context.Context, r orders.DateRange) (*services.FetchOutcome, error)
	Overview(ctx context.Context, r orders.DateRange) (*services.OverviewResult, error)
	Alerts(ctx context.Context) (*services.OrderAlerts, error)
	Invalidate(ctx context.Context, r *orders.DateRange, reason string) error
}

// DashboardHandler handles the dashboard API requests
type DashboardHandler struct {
	dashboard DashboardBackend
	now       func() time.Time
	logger    *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(dashboard DashboardBackend, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{
		dashboard: dashboard,
		now:       time.Now,
		logger:    logger,
	}
}

// GetOrders returns every order in the date range with its completeness
// GET /api/dashboard/orders?dateFrom=&dateTo=
func (h *DashboardHandler) GetOrders(c *gin.Context) {
	r, ok := h.dateRange(c)
	if !ok {
		return
	}

	out, err := h.dashboard.FetchOrders(c.Request.Context(), r)
	if err != nil {
		h.respondError(c, "Failed to fetch orders", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    out,
	})
}

// GetOverview returns the KPIs, charts and alerts for the date range
// GET /api/dashboard/overview?dateFrom=&dateTo=
func (h *DashboardHandler) GetOverview(c *gin.Context) {
	r, ok := h.dateRange(c)
	if !ok {
		return
	}

	out, err := h.dashboard.Overview(c.Request.Context(), r)
	if err != nil {
		h.respondError(c, "Failed to build overview", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    out,
	})
}

// GetAlerts returns the SLA alerts for today's orders
// GET /api/dashboard/alerts
func (h *DashboardHandler) GetAlerts(c *gin.Context) {
	alerts, err := h.dashboard.Alerts(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to derive alerts", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    alerts,
	})
}

// InvalidateCache drops cached orders for one range, or all of them when
// no range is given, and tells the other instances to do the same
// DELETE /api/dashboard/cache?dateFrom=&dateTo=
func (h *DashboardHandler) InvalidateCache(c *gin.Context) {
	from, to := c.Query("dateFrom"), c.Query("dateTo")
	if (from == "") != (to == "") {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "dateFrom and dateTo must be given together",
		})
		return
	}

	var r *orders.DateRange
	if from != "" {
		r = &orders.DateRange{From: from, To: to}
		if _, err := r.Days(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": orders.ErrorMessage(err)})
			return
		}
	}
	reason := c.DefaultQuery("reason", "manual")

	resp := gin.H{
		"success": true,
		"message": "Cache invalidated",
	}
	if err := h.dashboard.Invalidate(c.Request.Context(), r, reason); err != nil {
		// The local cache is always cleared; only the shared tiers can fail.
		h.logger.Warn("cache invalidation incomplete", zap.Error(err))
		resp["warning"] = err.Error()
	}

	c.JSON(http.StatusOK, resp)
}

// dateRange reads dateFrom/dateTo, defaulting each to the last seven days,
// and answers 400 when the range is malformed or too long.
func (h *DashboardHandler) dateRange(c *gin.Context) (orders.DateRange, bool) {
	def := orders.DefaultDateRange(h.now())
	r := orders.DateRange{
		From: c.DefaultQuery("dateFrom", def.From),
		To:   c.DefaultQuery("dateTo", def.To),
	}
	if _, err := r.Days(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": orders.ErrorMessage(err)})
		return r, false
	}
	return r, true
}

func (h *DashboardHandler) respondError(c *gin.Context, msg string, err error) {
	if errors.Is(err, orders.ErrInvalidData) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": orders.ErrorMessage(err)})
		return
	}

	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": msg})
}
