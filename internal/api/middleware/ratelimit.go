package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/enhub-AU/enquiry-partner/internal/config"
)

// clientLimiter stores the rate limiter for a specific client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware applies a per-client token bucket across the API.
type RateLimiterMiddleware struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	cfg     *config.Config
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		cfg:     cfg,
	}
	go rm.cleanupClients()
	return rm
}

func (rm *RateLimiterMiddleware) getClientLimiter(identifier string) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rm.cfg.RateLimitRefillRate), rm.cfg.RateLimitBucketSize),
		}
		rm.clients[identifier] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// cleanupClients periodically removes client entries that went quiet.
func (rm *RateLimiterMiddleware) cleanupClients() {
	for {
		time.Sleep(10 * time.Minute)
		rm.mu.Lock()
		count := 0
		for id, client := range rm.clients {
			if time.Since(client.lastSeen) > 30*time.Minute {
				delete(rm.clients, id)
				count++
			}
		}
		rm.mu.Unlock()
		if count > 0 {
			log.Printf("Rate limiter cleanup removed %d old client entries.", count)
		}
	}
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := rm.getClientLimiter(c.ClientIP())
		if !client.limiter.Allow() {
			log.Printf("Rate limit exceeded for client %s on %s", c.ClientIP(), c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
