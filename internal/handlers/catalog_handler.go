package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ggnetworks/hotspot-billing-backend/internal/services"
)

// CatalogHandler handles package catalog requests
type CatalogHandler struct {
	catalogService services.CatalogService
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalogService services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// ListPackages handles GET /hotspot/packages
func (h *CatalogHandler) ListPackages(c *gin.Context) {
	packages, err := h.catalogService.ListActivePackages(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list packages: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, packages)
}
