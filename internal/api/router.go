package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/enhub-AU/enquiry-partner/internal/api/handlers"
	"github.com/enhub-AU/enquiry-partner/internal/api/middleware"
	"github.com/enhub-AU/enquiry-partner/internal/config"
	"github.com/enhub-AU/enquiry-partner/internal/mail"
	"github.com/enhub-AU/enquiry-partner/internal/oauth"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(
	cfg *config.Config,
	rdb *redis.Client,
	dispatcher handlers.ScanDispatcher,
	agentService services.IAgentService,
	enquiryService services.IEnquiryService,
	messageService services.IMessageService,
	notificationService services.INotificationService,
	accountService services.IAccountService,
	google oauth.IGoogleOAuth,
) *gin.Engine {
	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	authHandler := handlers.NewAuthHandler(cfg, agentService)
	webhookHandler := handlers.NewWebhookHandler(enquiryService)
	enquiryHandler := handlers.NewEnquiryHandler(enquiryService)
	messageHandler := handlers.NewMessageHandler(messageService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	settingsHandler := handlers.NewSettingsHandler(agentService)
	verifyLogin := func(host string, port int, user, password string) error {
		return mail.VerifyLogin(host, port, user, password, cfg.ImapDialTimeout)
	}
	accountHandler := handlers.NewAccountHandler(accountService, google, rdb, verifyLogin)
	scanHandler := handlers.NewScanHandler(dispatcher)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Public routes
		v1.POST("/auth/login", authHandler.Login)

		// Webhook routes, authenticated by shared secret
		webhooks := v1.Group("/webhooks")
		webhooks.Use(middleware.WebhookAuthMiddleware(cfg.WebhookSecret))
		{
			webhooks.POST("/inbound-enquiry", webhookHandler.InboundEnquiry)
			webhooks.POST("/update-enquiry", webhookHandler.UpdateEnquiry)
		}

		// Scan trigger accepts either the cron secret or a session token
		v1.POST("/scan-emails", middleware.ScanAuthMiddleware(cfg.CronSecret, cfg.JwtSecret), scanHandler.Trigger)

		// Authenticated routes (rate limiting already applied globally)
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/enquiries", enquiryHandler.List)
			authRequired.GET("/enquiries/:id", enquiryHandler.Get)
			authRequired.PATCH("/enquiries/:id/read", enquiryHandler.MarkRead)
			authRequired.GET("/enquiries/:id/messages", messageHandler.List)
			authRequired.POST("/enquiries/:id/messages", messageHandler.Send)

			authRequired.PATCH("/messages/:id", messageHandler.Edit)
			authRequired.POST("/messages/:id/approve", messageHandler.Approve)

			authRequired.GET("/notifications", notificationHandler.List)
			authRequired.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
			authRequired.POST("/notifications/read-all", notificationHandler.MarkAllRead)

			authRequired.GET("/settings", settingsHandler.Get)
			authRequired.PATCH("/settings", settingsHandler.Update)

			authRequired.GET("/stats", enquiryHandler.Stats)

			authRequired.GET("/email-accounts", accountHandler.List)
			authRequired.POST("/email-accounts", accountHandler.Create)
			authRequired.PATCH("/email-accounts/:id", accountHandler.SetActive)
			authRequired.DELETE("/email-accounts/:id", accountHandler.Delete)

			authRequired.GET("/auth/google-email", accountHandler.GoogleStart)
		}

		// The OAuth callback arrives from Google's redirect, so no session
		// token is available. The one-time state key is the credential.
		v1.GET("/auth/google-email/callback", accountHandler.GoogleCallback)
	}

	return r
}
