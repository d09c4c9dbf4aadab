package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/clients"
	"github.com/niaga-platform/service-order-dashboard/internal/config"
	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
	"github.com/niaga-platform/service-order-dashboard/internal/events"
	"github.com/niaga-platform/service-order-dashboard/internal/handlers"
	"github.com/niaga-platform/service-order-dashboard/internal/metrics"
	"github.com/niaga-platform/service-order-dashboard/internal/middleware"
	"github.com/niaga-platform/service-order-dashboard/internal/providers/orderapi"
	"github.com/niaga-platform/service-order-dashboard/internal/routes"
	"github.com/niaga-platform/service-order-dashboard/internal/services"
)

func main() {
	// Load .env file in development
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Money amounts are JSON numbers, as the order API sends them
	decimal.MarshalJSONWithoutQuotes = true

	instanceID := uuid.New().String()
	logger.Info("Starting order dashboard service",
		zap.String("env", cfg.App.Env),
		zap.String("instance_id", instanceID),
	)

	// Order API access: shared limiter, partner token, client
	limiter := orders.NewRateLimiter(rateLimitConfig(cfg))

	tokenProvider := orderapi.NewTokenProvider(&orderapi.AuthConfig{
		BaseURL:      cfg.Upstream.BaseURL,
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		RetryPolicy:  orders.LoginRetryPolicy(),
		RateLimiter:  limiter,
		Logger:       logger,
	})

	tokenManager := orderapi.NewTokenManager(tokenProvider, orderapi.TokenManagerConfig{
		CheckInterval: cfg.Upstream.TokenCheck,
	}, logger)

	orderClient, err := orderapi.NewClient(&orderapi.ClientConfig{
		BaseURL:        cfg.Upstream.BaseURL,
		RequestTimeout: cfg.Upstream.Timeout,
		Tokens:         tokenProvider,
		RateLimiter:    limiter,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Failed to initialize order API client", zap.Error(err))
	}

	proxyService := services.NewProxyService(orderClient, services.ProxyServiceConfig{
		DevMode: cfg.IsDevelopment(),
	}, logger)

	// Pages for the dashboard come from the in-process proxy unless a remote
	// proxy is configured
	var pageSource services.PageSource = proxyService
	if cfg.Services.ProxyURL != "" {
		pageSource = clients.NewProxyClient(cfg.Services.ProxyURL, logger)
		logger.Info("Reading orders through remote proxy", zap.String("url", cfg.Services.ProxyURL))
	}

	fetcher := services.NewFetcher(pageSource, paginationPolicy(cfg), logger)
	ordersCache := services.NewOrdersCache(cfg.Cache.TTL, nil)
	breaker := services.NewCircuitBreaker(services.BreakerConfig{
		Name:      "order-api",
		Threshold: cfg.Breaker.Threshold,
		Cooldown:  cfg.Breaker.Cooldown,
	})
	requestQueue := services.NewRequestQueue(breaker, cfg.Breaker.RequestTimeout, logger)

	// Connect to Redis (optional - shared snapshot tier)
	var snapshots services.SnapshotStore
	var redisClient *redis.Client
	if addr := cfg.RedisAddr(); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Failed to connect to Redis, snapshot cache disabled", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			logger.Info("Connected to Redis", zap.String("addr", addr))
			snapshots = services.NewRedisSnapshotStore(redisClient, cfg.Cache.SnapshotTTL, logger)
		}
		cancel()
	}

	// Connect to NATS (optional - only if configured)
	var natsConn *nats.Conn
	var publisher services.EventPublisher
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.App.Name+"-"+instanceID))
		if err != nil {
			logger.Warn("Failed to connect to NATS, cache events disabled", zap.Error(err))
			natsConn = nil
		} else {
			logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
			publisher = events.NewPublisher(natsConn, instanceID, logger)
		}
	}

	dashboardService := services.NewDashboardService(
		requestQueue,
		fetcher,
		ordersCache,
		snapshots,
		publisher,
		services.DashboardServiceConfig{
			InstanceID:  instanceID,
			StaleFactor: cfg.Cache.StaleFactor,
		},
		logger,
	)

	countsService := services.NewCountsService(pageSource, services.CountsServiceConfig{
		TTL: cfg.Cache.CountsTTL,
	}, logger)

	// Start NATS subscriber if connected
	var eventSubscriber *events.Subscriber
	if natsConn != nil {
		eventSubscriber = events.NewSubscriber(natsConn, dashboardService, logger)
		if err := eventSubscriber.Start(); err != nil {
			logger.Warn("Failed to start event subscriber", zap.Error(err))
		}
	}

	// Keep the partner token warm
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := tokenManager.Start(ctx); err != nil {
		logger.Warn("Failed to start token manager", zap.Error(err))
	}

	// Initialize handlers
	proxyHandler := handlers.NewProxyHandler(proxyService, logger)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService, logger)
	orderHandler := handlers.NewOrderHandler(countsService, logger)
	healthHandler := handlers.NewHealthHandler(cfg.App.Name, dashboardService)
	escalationHandler := handlers.NewEscalationHandler(clients.NewTeamsClient(cfg.Teams.WebhookURL, logger), logger)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins()}))
	router.Use(metrics.PrometheusMiddleware())

	routes.SetupRoutes(router, &routes.RouteConfig{
		ProxyHandler:     proxyHandler,
		DashboardHandler: dashboardHandler,
		OrderHandler:     orderHandler,
		HealthHandler:    healthHandler,

		EscalationHandler: escalationHandler,
		EscalationLimit:   middleware.NewClientRateLimiter(cfg.Teams.RequestsPerMin, time.Minute).Handler(),
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Order dashboard service starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	tokenManager.Stop()
	if eventSubscriber != nil {
		eventSubscriber.Stop()
	}
	if natsConn != nil {
		natsConn.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// rateLimitConfig applies the configured request rate to the order list path.
func rateLimitConfig(cfg *config.Config) orders.RateLimitConfig {
	rl := orders.DefaultRateLimitConfig()
	if rps := cfg.Upstream.RequestsPerSecond; rps > 0 {
		rl.DefaultRPS = rps
		rl.PathLimits["/merchant/orders"] = orders.PathLimit{RPS: rps, Burst: rl.DefaultBurst}
	}
	return rl
}

// paginationPolicy overlays the configured limits on the default policy.
func paginationPolicy(cfg *config.Config) services.PaginationPolicy {
	policy := services.DefaultPaginationPolicy()
	p := cfg.Pagination

	if cfg.Upstream.PageSize > 0 {
		policy.PageSize = cfg.Upstream.PageSize
	}
	if p.MaxPages > 0 {
		policy.MaxPages = p.MaxPages
	}
	if p.MaxRows > 0 {
		policy.MaxRows = p.MaxRows
	}
	if p.PageTimeout > 0 {
		policy.PageTimeout = p.PageTimeout
	}
	if p.PageDelay > 0 {
		policy.PageDelay = p.PageDelay
	}
	if p.RetryAttempts > 0 {
		policy.PageRetry.Attempts = p.RetryAttempts
	}
	policy.SkipPages = p.SkipPages
	policy.PageTimeoutOverrides = map[int]time.Duration{}
	if p.SlowPageTimeout > 0 {
		for _, page := range p.SkipPages {
			policy.PageTimeoutOverrides[page] = p.SlowPageTimeout
		}
	}
	return policy
}
