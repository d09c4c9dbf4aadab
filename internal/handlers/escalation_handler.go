package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/clients"
)

// EscalationSender delivers an escalation card to the on-call channel.
type EscalationSender interface {
	Send(ctx context.Context, card json.RawMessage) error
}

// EscalationHandler forwards SLA escalations to MS Teams
type EscalationHandler struct {
	sender EscalationSender
	now    func() time.Time
	logger *zap.Logger
}

// NewEscalationHandler creates a new EscalationHandler
func NewEscalationHandler(sender EscalationSender, logger *zap.Logger) *EscalationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationHandler{
		sender: sender,
		now:    time.Now,
		logger: logger,
	}
}

// Escalate forwards the request body, a Teams message card, unchanged
// POST /api/teams-webhook
func (h *EscalationHandler) Escalate(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	var card map[string]interface{}
	if err != nil || json.Unmarshal(raw, &card) != nil || card == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	summary, _ := card["summary"].(string)
	if summary == "" {
		summary = "Unknown"
	}
	h.logger.Info("sending escalation to MS Teams",
		zap.String("client_ip", c.ClientIP()),
		zap.String("summary", summary),
	)

	if err := h.sender.Send(c.Request.Context(), raw); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Escalation sent successfully",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *EscalationHandler) respondError(c *gin.Context, err error) {
	var statusErr *clients.WebhookStatusError
	switch {
	case errors.Is(err, clients.ErrWebhookNotConfigured):
		h.logger.Error("MS Teams webhook URL not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "MS Teams webhook URL not configured"})
	case errors.Is(err, clients.ErrWebhookInvalidURL):
		h.logger.Error("invalid MS Teams webhook URL format")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Invalid webhook URL configuration"})
	case errors.Is(err, clients.ErrWebhookTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"success": false, "message": "Request to MS Teams timed out"})
	case errors.As(err, &statusErr):
		code := http.StatusBadRequest
		if statusErr.StatusCode >= 500 {
			code = http.StatusBadGateway
		}
		c.JSON(code, gin.H{"success": false, "message": statusErr.Message(), "status": statusErr.StatusCode})
	default:
		h.logger.Error("escalation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
	}
}
