package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// DefaultLoginEndpoints are tried in order until one issues a token.
var DefaultLoginEndpoints = []string{
	"/auth/poc-orderlist/login",
	"/auth/login",
}

var (
	tokenFields  = []string{"token", "access_token", "accessToken", "authToken", "jwt", "bearerToken"}
	expiryFields = []string{"expires_in", "expiresIn"}
)

// AuthConfig holds configuration for the partner login.
type AuthConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Endpoints    []string
	Timeout      time.Duration
	ExpiryBuffer time.Duration
	RetryPolicy  *orders.RetryPolicy
	RateLimiter  *orders.RateLimiter
	HTTPClient   *http.Client
	Logger       *zap.Logger
	Now          func() time.Time
}

// TokenProvider obtains and caches the partner bearer token.
// Concurrent callers that need a new token share a single login.
type TokenProvider struct {
	baseURL      string
	clientID     string
	clientSecret string
	endpoints    []string
	timeout      time.Duration
	expiryBuffer time.Duration
	retryPolicy  *orders.RetryPolicy
	limiter      *orders.RateLimiter
	httpClient   *http.Client
	logger       *zap.Logger
	now          func() time.Time

	logins singleflight.Group

	mu    sync.Mutex
	token *orders.Token
}

// NewTokenProvider creates a token provider.
func NewTokenProvider(cfg *AuthConfig) *TokenProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = DefaultLoginEndpoints
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	buffer := cfg.ExpiryBuffer
	if buffer == 0 {
		buffer = orders.DefaultExpiryBuffer
	}

	retryPolicy := cfg.RetryPolicy
	if retryPolicy == nil {
		retryPolicy = orders.LoginRetryPolicy()
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = orders.NewRateLimiter(orders.DefaultRateLimitConfig())
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenProvider{
		baseURL:      baseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		endpoints:    endpoints,
		timeout:      timeout,
		expiryBuffer: buffer,
		retryPolicy:  retryPolicy,
		limiter:      limiter,
		httpClient:   httpClient,
		logger:       logger,
		now:          now,
	}
}

// Token returns a cached token, logging in when none is cached, the cached
// one is about to expire, or forceRefresh is set. Callers that need a login
// at the same time share one; each stops waiting when its own ctx is done.
func (p *TokenProvider) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		p.mu.Lock()
		token := p.token
		p.mu.Unlock()
		if token != nil && !token.NeedsRefresh(p.now(), p.expiryBuffer) {
			return token.AccessToken(), nil
		}
	}

	ch := p.logins.DoChan("login", func() (interface{}, error) {
		token, err := p.login(context.WithoutCancel(ctx))

		p.mu.Lock()
		defer p.mu.Unlock()
		p.token = token
		if err != nil {
			return nil, err
		}
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*orders.Token).AccessToken(), nil
	case <-ctx.Done():
		return "", orders.NewAuthError("Authentication failed", ctx.Err())
	}
}

// NeedsRefresh reports whether the next Token call would log in.
func (p *TokenProvider) NeedsRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token == nil || p.token.NeedsRefresh(p.now(), p.expiryBuffer)
}

// ExpiresAt returns the expiry of the cached token, or the zero time.
func (p *TokenProvider) ExpiresAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == nil {
		return time.Time{}
	}
	return p.token.ExpiresAt()
}

// Clear drops the cached token.
func (p *TokenProvider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = nil
}

// login tries every endpoint with every body format until one issues a token.
func (p *TokenProvider) login(ctx context.Context) (*orders.Token, error) {
	if p.clientID == "" || p.clientSecret == "" {
		return nil, orders.NewAuthError("Authentication failed", orders.ErrMissingCredentials)
	}

	var lastErr error

	for _, endpoint := range p.endpoints {
		for _, body := range p.loginBodies() {
			var token *orders.Token
			attempts, err := p.retryPolicy.Do(ctx, func(ctx context.Context) error {
				var err error
				token, err = p.attempt(ctx, endpoint, body)
				return err
			})
			if err == nil {
				p.logger.Info("partner login succeeded",
					zap.String("endpoint", endpoint),
					zap.Int("attempts", attempts),
					zap.Time("expires_at", token.ExpiresAt()),
				)
				return token, nil
			}

			lastErr = err
			p.logger.Debug("partner login attempt failed",
				zap.String("endpoint", endpoint),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return nil, orders.NewAuthError("Authentication failed", ctx.Err())
			}
		}
	}

	p.logger.Error("partner login failed on all endpoints", zap.Error(lastErr))
	return nil, orders.NewAuthError("Authentication failed", lastErr)
}

func (p *TokenProvider) loginBodies() []map[string]string {
	return []map[string]string{
		{
			"partnerClientId":     p.clientID,
			"partnerClientSecret": p.clientSecret,
		},
		{
			"grant_type":    "client_credentials",
			"client_id":     p.clientID,
			"client_secret": p.clientSecret,
		},
	}
}

func (p *TokenProvider) attempt(ctx context.Context, endpoint string, body map[string]string) (*orders.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx, endpoint); err != nil {
		return nil, transportError(ctx, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal login body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, orders.NewUpstreamError(resp.StatusCode)
	}

	return p.parseToken(respBody)
}

// parseToken extracts the token and expiry from the loosely shaped login response.
func (p *TokenProvider) parseToken(body []byte) (*orders.Token, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, orders.NewValidationError("login response is not JSON", err)
	}

	// Some deployments nest the payload under "data".
	if nested, ok := fields["data"].(map[string]any); ok {
		for k, v := range nested {
			if _, exists := fields[k]; !exists {
				fields[k] = v
			}
		}
	}

	var accessToken string
	for _, name := range tokenFields {
		if s, ok := fields[name].(string); ok && s != "" {
			accessToken = s
			break
		}
	}
	if accessToken == "" {
		return nil, orders.NewValidationError("no token in login response", errors.New("missing token field"))
	}

	lifetime := orders.DefaultTokenLifetime
	for _, name := range expiryFields {
		if secs, ok := fields[name].(float64); ok && secs > 0 {
			lifetime = time.Duration(secs) * time.Second
			break
		}
	}

	return orders.NewToken(accessToken, p.now().Add(lifetime))
}
