// Package clients holds HTTP clients for sibling services.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

const externalOrdersPath = "/api/orders/external"

// ProxyClient reads order pages from a remote order proxy.
type ProxyClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewProxyClient creates a new ProxyClient
func NewProxyClient(baseURL string, logger *zap.Logger) *ProxyClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProxyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// FetchPage fetches one page of orders from the proxy. A success:false
// envelope is returned as is with a nil error; only transport failures and
// non-200 statuses are errors.
func (c *ProxyClient) FetchPage(ctx context.Context, q orders.PageQuery) (*orders.PageEnvelope, error) {
	q = q.Normalize()

	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	for key, value := range map[string]string{
		"status":   q.Status,
		"channel":  q.Channel,
		"search":   q.Search,
		"dateFrom": q.DateFrom,
		"dateTo":   q.DateTo,
	} {
		if value != "" {
			params.Set(key, value)
		}
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, externalOrdersPath, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, orders.NewTimeoutError(err)
		}
		return nil, orders.NewNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("order proxy returned an error status",
			zap.Int("status", resp.StatusCode),
			zap.Int("page", q.Page),
			zap.String("body", string(body)),
		)
		return nil, orders.NewUpstreamError(resp.StatusCode)
	}

	var env orders.PageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, orders.NewValidationError("failed to decode order proxy response", err)
	}
	if env.Data.Data == nil {
		env.Data.Data = []orders.Order{}
	}

	c.logger.Debug("fetched page from order proxy",
		zap.Int("page", q.Page),
		zap.Bool("success", env.Success),
		zap.Int("rows", len(env.Data.Data)),
	)
	return &env, nil
}
