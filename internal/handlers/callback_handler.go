package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slog"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/services"
)

// CallbackHandler handles asynchronous payment gateway callbacks
type CallbackHandler struct {
	paymentService services.PaymentService
	cfg            *config.Config
}

// NewCallbackHandler creates a new CallbackHandler
func NewCallbackHandler(paymentService services.PaymentService, cfg *config.Config) *CallbackHandler {
	return &CallbackHandler{paymentService: paymentService, cfg: cfg}
}

// HandleCallback handles POST /payments/callback. The provider retries on
// non-2xx, so every accepted payload is acknowledged with 200 even when it
// turns out to be a duplicate or references an unknown order.
func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	if hash := h.cfg.Gateway.WebhookSecretHash; hash != "" {
		secret := c.GetHeader("x-webhook-secret")
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
			slog.Warn("Callback rejected, bad webhook secret", "remote", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook secret"})
			return
		}
	}

	var payload services.GatewayCallback
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid callback payload: " + err.Error()})
		return
	}

	if err := h.paymentService.HandleGatewayCallback(c, payload); err != nil {
		slog.Error("Callback processing failed", "orderId", payload.TransactionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process callback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}
