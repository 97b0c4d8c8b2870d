package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/services"
)

// NotificationHandler handles operator notification queries
type NotificationHandler struct {
	notificationService services.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notificationService services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// GetJobsByStatus handles GET /notifications/status/:status
func (h *NotificationHandler) GetJobsByStatus(c *gin.Context) {
	status := models.NotificationStatus(c.Param("status"))
	switch status {
	case models.NotificationPending, models.NotificationSent, models.NotificationDeadLettered:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown notification status"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	jobs, err := h.notificationService.GetJobsByStatus(c, status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notifications: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, jobs)
}
