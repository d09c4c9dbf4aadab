package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/niaga-platform/service-order-dashboard/internal/services"
)

// BreakerReporter exposes the order API circuit breaker state.
type BreakerReporter interface {
	Breaker() services.BreakerSnapshot
}

// HealthHandler reports service liveness.
type HealthHandler struct {
	service string
	breaker BreakerReporter
}

// NewHealthHandler creates a new HealthHandler. breaker may be nil.
func NewHealthHandler(service string, breaker BreakerReporter) *HealthHandler {
	return &HealthHandler{service: service, breaker: breaker}
}

// Health reports the service as healthy, or degraded while the order API
// circuit is open. It always answers 200.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": h.service,
		"time":    time.Now().UTC(),
	}
	if h.breaker != nil {
		snapshot := h.breaker.Breaker()
		resp["circuitBreaker"] = snapshot
		if snapshot.State == services.StateOpen {
			resp["status"] = "degraded"
		}
	}

	c.JSON(http.StatusOK, resp)
}
