package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/oauth"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

const oauthStateTTL = 10 * time.Minute

// VerifyLoginFunc checks a password mailbox's IMAP credentials before the
// account is persisted. A nil func skips the check.
type VerifyLoginFunc func(host string, port int, user, password string) error

// AccountHandler handles the monitored-mailbox endpoints, including the
// Google OAuth linking flow.
type AccountHandler struct {
	accountService services.IAccountService
	google         oauth.IGoogleOAuth
	rdb            *redis.Client
	verifyLogin    VerifyLoginFunc
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService services.IAccountService, google oauth.IGoogleOAuth, rdb *redis.Client, verifyLogin VerifyLoginFunc) *AccountHandler {
	return &AccountHandler{accountService: accountService, google: google, rdb: rdb, verifyLogin: verifyLogin}
}

// accountView strips encrypted credential fields from responses.
type accountView struct {
	ID            string            `json:"id"`
	Label         string            `json:"label"`
	Provider      string            `json:"provider"`
	ImapHost      string            `json:"imap_host"`
	ImapUser      string            `json:"imap_user"`
	AuthMethod    models.AuthMethod `json:"auth_method"`
	IsActive      bool              `json:"is_active"`
	LastScanAt    *time.Time        `json:"last_scan_at,omitempty"`
	LastScanError string            `json:"last_scan_error,omitempty"`
}

func toAccountView(a models.EmailAccount) accountView {
	return accountView{
		ID:            a.ID.Hex(),
		Label:         a.Label,
		Provider:      a.Provider,
		ImapHost:      a.ImapHost,
		ImapUser:      a.ImapUser,
		AuthMethod:    a.AuthMethod,
		IsActive:      a.IsActive,
		LastScanAt:    a.LastScanAt,
		LastScanError: a.LastScanError,
	}
}

// List handles GET /v1/email-accounts
func (h *AccountHandler) List(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}

	accounts, err := h.accountService.ListByAgent(c.Request.Context(), agentID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list email accounts"})
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, toAccountView(a))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

// CreateAccountRequest registers a password-authenticated mailbox. OAuth
// mailboxes go through the Google linking flow instead.
type CreateAccountRequest struct {
	Label        string `json:"label"`
	Provider     string `json:"provider"`
	ImapHost     string `json:"imap_host" binding:"required"`
	ImapPort     int    `json:"imap_port"`
	ImapUser     string `json:"imap_user" binding:"required"`
	ImapPassword string `json:"imap_password" binding:"required"`
	SmtpHost     string `json:"smtp_host"`
	SmtpPort     int    `json:"smtp_port"`
	SmtpUser     string `json:"smtp_user"`
	SmtpPassword string `json:"smtp_password"`
}

// Create handles POST /v1/email-accounts
func (h *AccountHandler) Create(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imap_host, imap_user and imap_password are required"})
		return
	}

	if h.verifyLogin != nil {
		if err := h.verifyLogin(req.ImapHost, req.ImapPort, req.ImapUser, req.ImapPassword); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("IMAP connection failed: %v", err)})
			return
		}
	}

	account, err := h.accountService.Create(c.Request.Context(), services.NewAccountInput{
		AgentID:      agentID,
		Label:        req.Label,
		Provider:     req.Provider,
		ImapHost:     req.ImapHost,
		ImapPort:     req.ImapPort,
		ImapUser:     req.ImapUser,
		ImapPassword: req.ImapPassword,
		AuthMethod:   models.AuthPassword,
		SmtpHost:     req.SmtpHost,
		SmtpPort:     req.SmtpPort,
		SmtpUser:     req.SmtpUser,
		SmtpPassword: req.SmtpPassword,
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create email account"})
		return
	}

	c.JSON(http.StatusCreated, toAccountView(*account))
}

// SetActiveRequest toggles scanning for a mailbox.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetActive handles PATCH /v1/email-accounts/:id
func (h *AccountHandler) SetActive(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	accountID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account ID format"})
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
		return
	}

	if err := h.accountService.SetActive(c.Request.Context(), agentID, accountID, *req.IsActive); err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Email account not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update email account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete handles DELETE /v1/email-accounts/:id
func (h *AccountHandler) Delete(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}
	accountID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account ID format"})
		return
	}

	if err := h.accountService.Delete(c.Request.Context(), agentID, accountID); err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Email account not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete email account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GoogleStart handles GET /v1/auth/google-email. It stashes the agent id
// under a one-time state key and redirects to Google's consent screen.
func (h *AccountHandler) GoogleStart(c *gin.Context) {
	agentID, ok := requireAgent(c)
	if !ok {
		return
	}

	state := uuid.NewString()
	key := fmt.Sprintf("oauth_state:%s", state)
	if err := h.rdb.Set(c.Request.Context(), key, agentID.Hex(), oauthStateTTL).Err(); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start OAuth flow"})
		return
	}

	authURL, err := h.google.AuthURL(state)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google OAuth is not configured"})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// GoogleCallback handles GET /v1/auth/google-email/callback. It exchanges the
// code, discovers the mailbox address and registers an oauth email account.
func (h *AccountHandler) GoogleCallback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing state or code"})
		return
	}

	key := fmt.Sprintf("oauth_state:%s", state)
	agentHex, err := h.rdb.GetDel(c.Request.Context(), key).Result()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired OAuth state"})
		return
	}
	agentID, err := primitive.ObjectIDFromHex(agentHex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OAuth state"})
		return
	}

	accessToken, refreshToken, err := h.google.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to exchange OAuth code"})
		return
	}
	if refreshToken == "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Google did not return a refresh token"})
		return
	}

	mailboxEmail, err := h.google.FetchEmail(c.Request.Context(), accessToken)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch mailbox address"})
		return
	}

	account, err := h.accountService.Create(c.Request.Context(), services.NewAccountInput{
		AgentID:           agentID,
		Label:             mailboxEmail,
		Provider:          "gmail",
		ImapHost:          "imap.gmail.com",
		ImapPort:          993,
		ImapUser:          mailboxEmail,
		AuthMethod:        models.AuthOAuth,
		OAuthRefreshToken: refreshToken,
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register mailbox"})
		return
	}

	c.JSON(http.StatusCreated, toAccountView(*account))
}
