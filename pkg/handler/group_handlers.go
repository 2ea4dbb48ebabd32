// Group HTTP handlers
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prdagent/prdagent/pkg/event"
	"github.com/prdagent/prdagent/pkg/models"
	"github.com/prdagent/prdagent/pkg/service"
)

// GroupHandler handles group HTTP requests, including the per-group
// websocket feed.
type GroupHandler struct {
	sessionService     *service.SessionService
	compressionService *service.CompressionService
	wsHandler          *event.WSHandler
}

func NewGroupHandler(sessionService *service.SessionService, compressionService *service.CompressionService, wsHandler *event.WSHandler) *GroupHandler {
	return &GroupHandler{
		sessionService:     sessionService,
		compressionService: compressionService,
		wsHandler:          wsHandler,
	}
}

// RegisterRoutes registers group routes
func (h *GroupHandler) RegisterRoutes(r *gin.RouterGroup) {
	groups := r.Group("/groups")
	{
		groups.POST("", h.CreateGroup)
		groups.GET("", h.ListGroups)
		groups.GET("/:id", h.GetGroup)
		groups.DELETE("/:id", h.DeleteGroup)
		groups.POST("/:id/join", h.JoinGroup)
		groups.GET("/:id/members", h.GetMembers)
		groups.GET("/:id/ws", h.wsHandler.Handle)
	}
}

// CreateGroup creates a group around one document
// POST /api/v1/groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req models.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" || req.DocumentID == "" || req.OwnerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, document_id and owner_id are required"})
		return
	}

	group, err := h.sessionService.CreateGroup(&req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, group)
}

// ListGroups lists groups the user belongs to
// GET /api/v1/groups?user_id=xxx
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	groups, err := h.sessionService.ListGroups(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup gets a group by ID
// GET /api/v1/groups/:id
func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, err := h.sessionService.GetGroup(c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, group)
}

// DeleteGroup tears down a group, its sessions, timeline and checkpoints
// DELETE /api/v1/groups/:id
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID := c.Param("id")
	if err := h.sessionService.TeardownGroup(groupID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.compressionService.InvalidateCheckpoint(c.Request.Context(), groupID)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// JoinGroup adds a user to a group and opens their session onto it
// POST /api/v1/groups/:id/join
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	var req models.JoinGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	sess, err := h.sessionService.JoinGroup(c.Param("id"), &req)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetMembers lists group members
// GET /api/v1/groups/:id/members
func (h *GroupHandler) GetMembers(c *gin.Context) {
	members, err := h.sessionService.GroupMembers(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}
