package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/niaga-platform/service-order-dashboard/internal/handlers"
	"github.com/niaga-platform/service-order-dashboard/internal/metrics"
)

// RouteConfig holds configuration for routes
type RouteConfig struct {
	ProxyHandler     *handlers.ProxyHandler
	DashboardHandler *handlers.DashboardHandler
	OrderHandler     *handlers.OrderHandler
	HealthHandler    *handlers.HealthHandler

	EscalationHandler *handlers.EscalationHandler
	// EscalationLimit guards the escalation route when set.
	EscalationLimit   gin.HandlerFunc
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg *RouteConfig) {
	if cfg.HealthHandler != nil {
		router.GET("/health", cfg.HealthHandler.Health)
	}
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")

	// Order proxy and order actions
	ordersGroup := api.Group("/orders")
	{
		if cfg.ProxyHandler != nil {
			ordersGroup.GET("/external", cfg.ProxyHandler.External)
			ordersGroup.GET("/summary", cfg.ProxyHandler.Summary)
			ordersGroup.GET("/details/:id", cfg.ProxyHandler.Details)
		}
		if cfg.OrderHandler != nil {
			ordersGroup.GET("/counts", cfg.OrderHandler.GetCounts)
			ordersGroup.POST("/:id/cancel", cfg.OrderHandler.CancelOrder)
		}
	}

	if cfg.EscalationHandler != nil {
		chain := []gin.HandlerFunc{cfg.EscalationHandler.Escalate}
		if cfg.EscalationLimit != nil {
			chain = append([]gin.HandlerFunc{cfg.EscalationLimit}, chain...)
		}
		api.POST("/teams-webhook", chain...)
	}

	// Dashboard views over the cached order set
	if cfg.DashboardHandler != nil {
		dashboard := api.Group("/dashboard")
		{
			dashboard.GET("/orders", cfg.DashboardHandler.GetOrders)
			dashboard.GET("/overview", cfg.DashboardHandler.GetOverview)
			dashboard.GET("/alerts", cfg.DashboardHandler.GetAlerts)
			dashboard.DELETE("/cache", cfg.DashboardHandler.InvalidateCache)
		}
	}
}
