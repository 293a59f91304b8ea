package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enhub-AU/enquiry-partner/internal/auth"
	"github.com/enhub-AU/enquiry-partner/internal/config"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// AuthHandler handles agent session endpoints.
type AuthHandler struct {
	cfg          *config.Config
	agentService services.IAgentService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg *config.Config, agentService services.IAgentService) *AuthHandler {
	return &AuthHandler{cfg: cfg, agentService: agentService}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	agent, err := h.agentService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	token, err := auth.GenerateJWT(agent.ID, agent.Email, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"agent": gin.H{
			"id":        agent.ID.Hex(),
			"email":     agent.Email,
			"full_name": agent.FullName,
		},
	})
}
