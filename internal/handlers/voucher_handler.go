package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"

	"github.com/ggnetworks/hotspot-billing-backend/internal/services"
)

// VoucherHandler handles captive-portal voucher requests
type VoucherHandler struct {
	voucherService services.VoucherService
}

// NewVoucherHandler creates a new VoucherHandler
func NewVoucherHandler(voucherService services.VoucherService) *VoucherHandler {
	return &VoucherHandler{voucherService: voucherService}
}

// ValidateVoucher handles POST /hotspot/voucher/validate
func (h *VoucherHandler) ValidateVoucher(c *gin.Context) {
	var req struct {
		Code      string `json:"code" binding:"required"`
		DeviceMac string `json:"deviceMac" binding:"required"`
		IPAddress string `json:"ipAddress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	slog.Debug("Voucher validation request", "mac", req.DeviceMac, "ip", req.IPAddress)
	validation, err := h.voucherService.ValidateVoucher(c, req.Code, req.DeviceMac)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate voucher: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, validation)
}
