package orderapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RefreshableTokenSource is a token source that knows when its token is stale.
type RefreshableTokenSource interface {
	TokenSource
	NeedsRefresh() bool
}

// TokenManagerConfig holds configuration for the token manager.
type TokenManagerConfig struct {
	CheckInterval time.Duration // How often to check the cached token
}

// TokenManager refreshes the partner token in the background so request paths
// rarely pay for a login.
type TokenManager struct {
	tokens RefreshableTokenSource
	config TokenManagerConfig
	logger *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewTokenManager creates a new token manager.
func NewTokenManager(tokens RefreshableTokenSource, cfg TokenManagerConfig, logger *zap.Logger) *TokenManager {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenManager{
		tokens:   tokens,
		config:   cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background refresh loop.
func (tm *TokenManager) Start(ctx context.Context) error {
	tm.mu.Lock()
	if tm.running {
		tm.mu.Unlock()
		return fmt.Errorf("token manager already running")
	}
	tm.running = true
	tm.mu.Unlock()

	tm.wg.Add(1)
	go tm.run(ctx)

	tm.logger.Info("token manager started",
		zap.Duration("check_interval", tm.config.CheckInterval),
	)

	return nil
}

// Stop gracefully stops the token manager.
func (tm *TokenManager) Stop() {
	tm.mu.Lock()
	if !tm.running {
		tm.mu.Unlock()
		return
	}
	tm.running = false
	tm.mu.Unlock()

	close(tm.stopChan)
	tm.wg.Wait()

	tm.logger.Info("token manager stopped")
}

func (tm *TokenManager) run(ctx context.Context) {
	defer tm.wg.Done()

	ticker := time.NewTicker(tm.config.CheckInterval)
	defer ticker.Stop()

	tm.checkAndRefresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-tm.stopChan:
			return
		case <-ticker.C:
			tm.checkAndRefresh(ctx)
		}
	}
}

// checkAndRefresh logs in ahead of expiry. Failures are left for the request
// path, which logs in on demand.
func (tm *TokenManager) checkAndRefresh(ctx context.Context) {
	if !tm.tokens.NeedsRefresh() {
		return
	}

	if _, err := tm.tokens.Token(ctx, true); err != nil {
		tm.logger.Warn("background token refresh failed", zap.Error(err))
		return
	}

	tm.logger.Info("partner token refreshed in background")
}
