package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// MessageHandler handles conversation and draft-approval endpoints.
type MessageHandler struct {
	messageService services.IMessageService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messageService services.IMessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// List handles GET /v1/enquiries/:id/messages
func (h *MessageHandler) List(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	enquiryID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid enquiry ID format"})
		return
	}

	messages, err := h.messageService.ListByEnquiry(c.Request.Context(), agentID, enquiryID)
	if err != nil {
		if errors.Is(err, services.ErrEnquiryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Enquiry not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessageRequest is the manual agent reply payload.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Send handles POST /v1/enquiries/:id/messages
func (h *MessageHandler) Send(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	enquiryID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid enquiry ID format"})
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	message, err := h.messageService.AppendAgentMessage(c.Request.Context(), agentID, enquiryID, req.Content)
	if err != nil {
		if errors.Is(err, services.ErrEnquiryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Enquiry not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, message)
}

// EditDraftRequest is the draft edit payload.
type EditDraftRequest struct {
	Content string `json:"content" binding:"required"`
}

// Edit handles PATCH /v1/messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	messageID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID format"})
		return
	}
	var req EditDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	message, err := h.messageService.EditDraft(c.Request.Context(), agentID, messageID, req.Content)
	if err != nil {
		if errors.Is(err, services.ErrMessageNotFound) || errors.Is(err, services.ErrEnquiryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Draft not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to edit draft"})
		return
	}

	c.JSON(http.StatusOK, message)
}

// Approve handles POST /v1/messages/:id/approve
func (h *MessageHandler) Approve(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	messageID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID format"})
		return
	}

	message, err := h.messageService.ApproveDraft(c.Request.Context(), agentID, messageID)
	if err != nil {
		if errors.Is(err, services.ErrMessageNotFound) || errors.Is(err, services.ErrEnquiryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Draft not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to approve draft"})
		return
	}

	c.JSON(http.StatusOK, message)
}
