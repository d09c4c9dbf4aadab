package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Webhook configuration errors.
var (
	ErrWebhookNotConfigured = errors.New("MS Teams webhook URL not configured")
	ErrWebhookInvalidURL    = errors.New("invalid webhook URL configuration")
	ErrWebhookTimeout       = errors.New("request to MS Teams timed out")
)

// WebhookStatusError is a non-2xx answer from the Teams webhook.
type WebhookStatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *WebhookStatusError) Error() string {
	return fmt.Sprintf("teams webhook returned %d: %s", e.StatusCode, e.Message())
}

// Message is the client-facing description of the status.
func (e *WebhookStatusError) Message() string {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return "Invalid message format for MS Teams"
	case e.StatusCode == http.StatusNotFound:
		return "MS Teams webhook URL not found"
	case e.StatusCode >= 500:
		return "MS Teams service temporarily unavailable"
	default:
		return "Failed to send to MS Teams"
	}
}

// ValidWebhookURL reports whether raw is an https Office 365 incoming webhook.
func ValidWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" &&
		strings.Contains(u.Hostname(), "office.com") &&
		strings.Contains(u.Path, "/webhookb2/")
}

// TeamsClient forwards SLA escalation cards to an MS Teams incoming webhook.
type TeamsClient struct {
	webhookURL string
	validURL   func(string) bool
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTeamsClient creates a new TeamsClient. An empty webhookURL is allowed;
// Send then fails with ErrWebhookNotConfigured.
func NewTeamsClient(webhookURL string, logger *zap.Logger) *TeamsClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamsClient{
		webhookURL: webhookURL,
		validURL:   ValidWebhookURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Send posts card to the webhook unchanged.
func (c *TeamsClient) Send(ctx context.Context, card json.RawMessage) error {
	if c.webhookURL == "" {
		return ErrWebhookNotConfigured
	}
	if !c.validURL(c.webhookURL) {
		return ErrWebhookInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(card))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "order-dashboard/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return ErrWebhookTimeout
		}
		return fmt.Errorf("failed to call teams webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("teams webhook rejected escalation",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return &WebhookStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Info("escalation sent to MS Teams")
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
