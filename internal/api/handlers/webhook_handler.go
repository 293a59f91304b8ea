package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// WebhookHandler receives pre-processed enquiry events from an upstream
// automation pipeline (n8n or similar).
type WebhookHandler struct {
	enquiryService services.IEnquiryService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(enquiryService services.IEnquiryService) *WebhookHandler {
	return &WebhookHandler{enquiryService: enquiryService}
}

// InboundEnquiryRequest is the payload for a brand-new enquiry.
type InboundEnquiryRequest struct {
	AgentEmail         string `json:"agent_email"`
	ClientName         string `json:"client_name"`
	ClientEmail        string `json:"client_email"`
	ClientPhone        string `json:"client_phone"`
	Subject            string `json:"subject"`
	Body               string `json:"body"`
	Category           string `json:"category"`
	PropertyAddress    string `json:"property_address"`
	PropertyPriceGuide string `json:"property_price_guide"`
	Source             string `json:"source"`
	AIDraft            string `json:"ai_draft"`
}

// InboundEnquiry handles POST /v1/webhooks/inbound-enquiry
func (h *WebhookHandler) InboundEnquiry(c *gin.Context) {
	var req InboundEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	if req.AgentEmail == "" || req.ClientName == "" || req.ClientEmail == "" || req.Subject == "" || req.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required fields: agent_email, client_name, client_email, subject, body",
		})
		return
	}
	if req.Category != "" && !models.ValidCategory(req.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category"})
		return
	}

	result, err := h.enquiryService.ProcessNewEnquiry(c.Request.Context(), services.NewEnquiryInput{
		AgentEmail:         req.AgentEmail,
		ClientName:         req.ClientName,
		ClientEmail:        req.ClientEmail,
		ClientPhone:        req.ClientPhone,
		Subject:            req.Subject,
		Body:               req.Body,
		Category:           models.EnquiryCategory(req.Category),
		PropertyAddress:    req.PropertyAddress,
		PropertyPriceGuide: req.PropertyPriceGuide,
		Source:             req.Source,
		AIDraft:            req.AIDraft,
	})
	if err != nil {
		if errors.Is(err, services.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process enquiry"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"enquiry_id":        result.EnquiryID.Hex(),
		"contact_id":        result.ContactID.Hex(),
		"status":            result.Status,
		"ai_message_status": result.AIMessageStatus,
	})
}

// UpdateEnquiryRequest is the payload for a reply on an existing enquiry.
type UpdateEnquiryRequest struct {
	EnquiryID           string `json:"enquiry_id"`
	Sender              string `json:"sender"`
	Content             string `json:"content"`
	AIDraft             string `json:"ai_draft"`
	IsInspectionRequest bool   `json:"is_inspection_request"`
	IsOfferIntent       bool   `json:"is_offer_intent"`
}

// UpdateEnquiry handles POST /v1/webhooks/update-enquiry
func (h *WebhookHandler) UpdateEnquiry(c *gin.Context) {
	var req UpdateEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	if req.EnquiryID == "" || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: enquiry_id, content"})
		return
	}
	enquiryID, err := primitive.ObjectIDFromHex(req.EnquiryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid enquiry_id format"})
		return
	}

	result, err := h.enquiryService.ProcessUpdate(c.Request.Context(), services.EnquiryUpdateInput{
		EnquiryID:           enquiryID,
		Sender:              models.MessageSender(req.Sender),
		Content:             req.Content,
		AIDraft:             req.AIDraft,
		IsInspectionRequest: req.IsInspectionRequest,
		IsOfferIntent:       req.IsOfferIntent,
	})
	if err != nil {
		if errors.Is(err, services.ErrEnquiryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process enquiry update"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enquiry_id":       result.EnquiryID.Hex(),
		"promoted":         result.Promoted,
		"promotion_reason": result.PromotionReason,
	})
}
