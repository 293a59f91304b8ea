package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// bearerOrRaw accepts both "Bearer <secret>" and a bare secret value, since
// upstream webhook providers differ in how they send the header.
func bearerOrRaw(header string) string {
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return header[len("bearer "):]
	}
	return header
}

// WebhookAuthMiddleware guards the inbound webhook endpoints with the shared
// webhook secret.
func WebhookAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Webhook secret not configured"})
			return
		}
		provided := bearerOrRaw(c.GetHeader("Authorization"))
		if provided != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook secret"})
			return
		}
		c.Next()
	}
}

// ScanAuthMiddleware guards the scan trigger endpoint. A scheduler calls it
// with the cron secret; a logged-in agent can also trigger it with a session
// token, which falls through to AuthMiddleware.
func ScanAuthMiddleware(cronSecret, jwtSecret string) gin.HandlerFunc {
	authFallback := AuthMiddleware(jwtSecret)
	return func(c *gin.Context) {
		if cronSecret != "" {
			provided := bearerOrRaw(c.GetHeader("Authorization"))
			if provided == cronSecret {
				c.Next()
				return
			}
		}
		authFallback(c)
	}
}
