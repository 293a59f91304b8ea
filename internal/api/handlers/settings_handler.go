package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// SettingsHandler handles the per-agent settings endpoints.
type SettingsHandler struct {
	agentService services.IAgentService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(agentService services.IAgentService) *SettingsHandler {
	return &SettingsHandler{agentService: agentService}
}

// Get handles GET /v1/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}

	settings, err := h.agentService.GetSettings(c.Request.Context(), agentID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// Update handles PATCH /v1/settings. The body is a partial settings object;
// unknown fields are ignored by the service's whitelist.
func (h *SettingsHandler) Update(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil || len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid settings payload"})
		return
	}

	settings, err := h.agentService.UpdateSettings(c.Request.Context(), agentID, updates)
	if err != nil {
		if strings.Contains(err.Error(), "invalid ai_mode") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
		return
	}

	c.JSON(http.StatusOK, settings)
}
