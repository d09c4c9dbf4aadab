package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/services"
)

// CountsBackend computes the order counts badge.
type CountsBackend interface {
	Counts(ctx context.Context) (*services.CountsResult, error)
}

// OrderHandler handles order count and cancellation requests
type OrderHandler struct {
	counts CountsBackend
	now    func() time.Time
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(counts CountsBackend, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{
		counts: counts,
		now:    time.Now,
		logger: logger,
	}
}

// GetCounts returns the SLA counts for the last seven days
// GET /api/orders/counts
func (h *OrderHandler) GetCounts(c *gin.Context) {
	result, err := h.counts.Counts(c.Request.Context())
	if err != nil {
		h.logger.Warn("Failed to compute order counts", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   err.Error(),
			"data":    services.OrderCounts{},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      result.Counts,
		"cached":    result.Cached,
		"timestamp": result.Timestamp.UTC().Format(time.RFC3339),
	})
}

// CancelOrderRequest represents the request to cancel an order
type CancelOrderRequest struct {
	ReasonID string `json:"reasonId" binding:"required"`
	Note     string `json:"note" binding:"max=500"`
}

// CancelOrder records a cancellation. Nothing is persisted or sent upstream;
// the response carries an audit ID that is also written to the log.
// POST /api/orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	orderID := c.Param("id")

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Cancel reason is required",
		})
		return
	}

	auditID := uuid.New()
	cancelledAt := h.now().UTC()

	h.logger.Info("order cancelled",
		zap.String("order_id", orderID),
		zap.String("reason_id", req.ReasonID),
		zap.String("audit_id", auditID.String()),
	)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     fmt.Sprintf("Order %s has been cancelled successfully", orderID),
		"orderId":     orderID,
		"cancelledAt": cancelledAt.Format(time.RFC3339),
		"reasonId":    req.ReasonID,
		"auditId":     auditID.String(),
	})
}
