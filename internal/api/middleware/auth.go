package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/auth"
)

const (
	// ContextKeyAgentID holds the key for the agent ID in Gin context.
	ContextKeyAgentID = "agentID"
	// ContextKeyAgentEmail holds the key for the agent email in Gin context.
	ContextKeyAgentEmail = "agentEmail"
)

// AuthMiddleware creates a Gin middleware for agent JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Invalid or expired token: %v", err)})
			return
		}

		c.Set(ContextKeyAgentID, claims.AgentID)
		c.Set(ContextKeyAgentEmail, claims.Email)

		c.Next()
	}
}

// AgentID extracts the authenticated agent's id from the Gin context.
// Assumes AuthMiddleware ran first.
func AgentID(c *gin.Context) (primitive.ObjectID, bool) {
	value, exists := c.Get(ContextKeyAgentID)
	if !exists {
		return primitive.NilObjectID, false
	}
	hex, ok := value.(string)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}
