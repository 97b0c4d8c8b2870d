package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/services"
)

// SessionHandler handles operator session management requests
type SessionHandler struct {
	activationService services.ActivationService
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(activationService services.ActivationService) *SessionHandler {
	return &SessionHandler{activationService: activationService}
}

// TerminateSession handles POST /sessions/:id/terminate
func (h *SessionHandler) TerminateSession(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional; a bare terminate uses the default reason.
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "terminated by operator"
	}

	err := h.activationService.Revoke(c, c.Param("id"), req.Reason)
	if err != nil {
		if errors.Is(err, payerrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to terminate session: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "terminated"})
}
