package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/services"
)

// PurchaseHandler handles purchase-related HTTP requests
type PurchaseHandler struct {
	paymentService services.PaymentService
}

// NewPurchaseHandler creates a new PurchaseHandler
func NewPurchaseHandler(paymentService services.PaymentService) *PurchaseHandler {
	return &PurchaseHandler{paymentService: paymentService}
}

// InitiatePurchase handles POST /hotspot/purchase
func (h *PurchaseHandler) InitiatePurchase(c *gin.Context) {
	var req models.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	tx, err := h.paymentService.InitiatePurchase(c, &req)
	if err != nil {
		status, msg := purchaseErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusAccepted, tx)
}

// SubmitAuthorizationCode handles POST /hotspot/purchase/:id/authorize
func (h *PurchaseHandler) SubmitAuthorizationCode(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	tx, err := h.paymentService.SubmitAuthorizationCode(c, c.Param("id"), req.Code)
	if err != nil {
		status, msg := purchaseErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// CancelPurchase handles POST /hotspot/purchase/:id/cancel
func (h *PurchaseHandler) CancelPurchase(c *gin.Context) {
	if err := h.paymentService.CancelPurchase(c, c.Param("id")); err != nil {
		status, msg := purchaseErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// GetPurchase handles GET /hotspot/purchase/:id
func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	tx, err := h.paymentService.GetTransaction(c, c.Param("id"))
	if err != nil {
		status, msg := purchaseErrorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// purchaseErrorStatus maps service errors to HTTP responses
func purchaseErrorStatus(err error) (int, string) {
	switch {
	case payerrors.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, payerrors.ErrNotFound):
		return http.StatusNotFound, "Transaction not found"
	case errors.Is(err, payerrors.ErrPendingPurchase):
		return http.StatusConflict, "A purchase is already pending for this phone number"
	case errors.Is(err, payerrors.ErrTerminalState):
		return http.StatusConflict, "Transaction is already finalized"
	case errors.Is(err, payerrors.ErrPaymentDeclined):
		return http.StatusPaymentRequired, "Payment was declined"
	case errors.Is(err, payerrors.ErrGatewayUnavailable):
		return http.StatusBadGateway, "Payment gateway is unavailable, please try again"
	default:
		return http.StatusInternalServerError, "Failed to process purchase: " + err.Error()
	}
}
