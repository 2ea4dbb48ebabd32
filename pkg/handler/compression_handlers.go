// Compression HTTP handlers - checkpoint inspection and manual triggering
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prdagent/prdagent/pkg/service"
)

// CompressionHandler exposes a group's compression checkpoint
type CompressionHandler struct {
	compressionService *service.CompressionService
}

func NewCompressionHandler(compressionService *service.CompressionService) *CompressionHandler {
	return &CompressionHandler{compressionService: compressionService}
}

// RegisterRoutes registers compression routes
func (h *CompressionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/groups/:id/compression", h.GetCheckpoint)
	r.POST("/groups/:id/compression", h.TriggerCompression)
}

// GetCheckpoint returns the live checkpoint for a group, if any
// GET /api/v1/groups/:id/compression
func (h *CompressionHandler) GetCheckpoint(c *gin.Context) {
	checkpoint, err := h.compressionService.Checkpoint(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if checkpoint == nil {
		c.JSON(http.StatusOK, gin.H{"checkpoint": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoint": checkpoint})
}

// TriggerCompression runs one forced compression pass for a group
// POST /api/v1/groups/:id/compression
func (h *CompressionHandler) TriggerCompression(c *gin.Context) {
	state, err := h.compressionService.ForceCompress(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if state == nil {
		c.JSON(http.StatusOK, gin.H{"compressed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"compressed": true, "checkpoint": state})
}
