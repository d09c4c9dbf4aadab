// Package orderapi is the client for the partner merchant-order REST API.
package orderapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

const (
	// DefaultBaseURL is the partner API used when none is configured.
	DefaultBaseURL = "https://dev-pmpapis.central.co.th/pmp/v2/grabmart/v1"

	ordersPath = "/merchant/orders"
)

// TokenSource hands out bearer tokens. forceRefresh bypasses any cached token.
type TokenSource interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// Client calls the merchant-order API with bearer auth, one retry after a
// 401, a per-request timeout and request spacing.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	tokens     TokenSource
	limiter    *orders.RateLimiter
	logger     *zap.Logger
}

// ClientConfig holds configuration for the order API client.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	Tokens         TokenSource
	RateLimiter    *orders.RateLimiter
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// NewClient creates a new order API client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("order API client requires a token source")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = orders.NewRateLimiter(orders.DefaultRateLimitConfig())
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		timeout:    timeout,
		tokens:     cfg.Tokens,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// ListOrders fetches one page of orders. A 401 triggers a single retry with
// a force-refreshed token.
func (c *Client) ListOrders(ctx context.Context, q orders.PageQuery) (*orders.Page, error) {
	q = q.Normalize()

	token, err := c.tokens.Token(ctx, false)
	if err != nil {
		return nil, err
	}

	page, err := c.listOrders(ctx, q, token)
	if err == nil || !isUnauthorized(err) {
		return page, err
	}

	c.logger.Warn("order API rejected token, refreshing",
		zap.Int("page", q.Page),
	)

	token, err = c.tokens.Token(ctx, true)
	if err != nil {
		return nil, err
	}
	return c.listOrders(ctx, q, token)
}

func (c *Client) listOrders(ctx context.Context, q orders.PageQuery, token string) (*orders.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx, ordersPath); err != nil {
		return nil, transportError(ctx, err)
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	setIfPresent(params, "status", q.Status)
	setIfPresent(params, "channel", q.Channel)
	setIfPresent(params, "search", q.Search)
	setIfPresent(params, "dateFrom", q.DateFrom)
	setIfPresent(params, "dateTo", q.DateTo)

	reqURL := c.baseURL + ordersPath + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	c.logger.Debug("order API request completed",
		zap.String("path", ordersPath),
		zap.Int("page", q.Page),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(startTime)),
		zap.String("response", truncateString(string(respBody), 500)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := orders.NewUpstreamError(resp.StatusCode)
		c.logger.Warn("order API error",
			zap.Int("status", resp.StatusCode),
			zap.Int("page", q.Page),
			zap.String("body", truncateString(string(respBody), 200)),
		)
		return nil, apiErr
	}

	var page orders.Page
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, orders.NewValidationError("failed to parse order list response", err)
	}
	if page.Data == nil {
		page.Data = []orders.Order{}
	}
	return &page, nil
}

// transportError classifies a failed round trip as a timeout or network error.
func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return orders.NewTimeoutError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return orders.NewTimeoutError(err)
	}
	return orders.NewNetworkError(err)
}

func isUnauthorized(err error) bool {
	var apiErr *orders.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

func setIfPresent(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// truncateString truncates a string to the specified length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
