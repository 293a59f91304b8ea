package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// NotificationHandler handles the notification feed endpoints.
type NotificationHandler struct {
	notificationService services.INotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notificationService services.INotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// List handles GET /v1/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}

	notifications, err := h.notificationService.List(c.Request.Context(), agentID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// MarkRead handles PATCH /v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	notificationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID format"})
		return
	}

	notification, err := h.notificationService.MarkRead(c.Request.Context(), agentID, notificationID)
	if err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark notification read"})
		return
	}

	c.JSON(http.StatusOK, notification)
}

// MarkAllRead handles POST /v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkAllRead(c.Request.Context(), agentID); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark notifications read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
