package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/api/middleware"
)

// ScanDispatcher is the slice of the task dispatcher the scan endpoint needs.
type ScanDispatcher interface {
	EnqueueGlobalScan() error
	EnqueueAgentScan(agentID primitive.ObjectID) error
}

// ScanHandler triggers mailbox sweeps on demand.
type ScanHandler struct {
	dispatcher ScanDispatcher
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(dispatcher ScanDispatcher) *ScanHandler {
	return &ScanHandler{dispatcher: dispatcher}
}

// Trigger handles POST /v1/scan-emails. Cron callers sweep every active
// mailbox; an authenticated agent sweeps only their own.
func (h *ScanHandler) Trigger(c *gin.Context) {
	var err error
	if agentID, ok := middleware.AgentID(c); ok {
		err = h.dispatcher.EnqueueAgentScan(agentID)
	} else {
		err = h.dispatcher.EnqueueGlobalScan()
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue email scan"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}
