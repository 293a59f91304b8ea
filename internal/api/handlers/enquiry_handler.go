package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/api/middleware"
	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// EnquiryHandler handles the agent-facing inbox endpoints.
type EnquiryHandler struct {
	enquiryService services.IEnquiryService
}

// NewEnquiryHandler creates a new EnquiryHandler.
func NewEnquiryHandler(enquiryService services.IEnquiryService) *EnquiryHandler {
	return &EnquiryHandler{enquiryService: enquiryService}
}

func requireAgent(c *gin.Context) (primitive.ObjectID, bool) {
	agentID, ok := middleware.AgentID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return primitive.NilObjectID, false
	}
	return agentID, true
}

// enquiryView flattens an enquiry thread for the list and detail responses.
type enquiryView struct {
	Enquiry  models.Enquiry   `json:"enquiry"`
	Contact  *models.Contact  `json:"contact,omitempty"`
	Messages []models.Message `json:"messages"`
}

func toView(thread services.EnquiryThread) enquiryView {
	return enquiryView{Enquiry: thread.Enquiry, Contact: thread.Contact, Messages: thread.Messages}
}

// List handles GET /v1/enquiries?status=...
func (h *EnquiryHandler) List(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}

	status := c.Query("status")
	if status != "" {
		switch models.EnquiryStatus(status) {
		case models.StatusNew, models.StatusNeedsAttention, models.StatusHot, models.StatusAutoHandled:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
			return
		}
	}

	threads, err := h.enquiryService.ListEnquiries(c.Request.Context(), agentID, models.EnquiryStatus(status))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list enquiries"})
		return
	}

	views := make([]enquiryView, 0, len(threads))
	for _, t := range threads {
		views = append(views, toView(t))
	}
	c.JSON(http.StatusOK, gin.H{"enquiries": views})
}

// Get handles GET /v1/enquiries/:id
func (h *EnquiryHandler) Get(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	enquiryID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid enquiry ID format"})
		return
	}

	thread, err := h.enquiryService.GetEnquiry(c.Request.Context(), agentID, enquiryID)
	if err != nil {
		if errors.Is(err, services.ErrEnquiryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Enquiry not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve enquiry"})
		return
	}

	c.JSON(http.StatusOK, toView(*thread))
}

// MarkRead handles PATCH /v1/enquiries/:id/read
func (h *EnquiryHandler) MarkRead(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	enquiryID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid enquiry ID format"})
		return
	}

	if err := h.enquiryService.MarkRead(c.Request.Context(), agentID, enquiryID); err != nil {
		if errors.Is(err, services.ErrEnquiryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Enquiry not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark enquiry read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Stats handles GET /v1/stats
func (h *EnquiryHandler) Stats(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}

	stats, err := h.enquiryService.Stats(c.Request.Context(), agentID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
