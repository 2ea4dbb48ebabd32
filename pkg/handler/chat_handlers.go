// Chat HTTP handlers - streaming turns and timeline access
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prdagent/prdagent/pkg/models"
	"github.com/prdagent/prdagent/pkg/service"
)

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// RegisterRoutes registers chat routes
func (h *ChatHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat/stream", h.ChatStream)
	r.POST("/chat/cancel", h.CancelStream)
	r.GET("/chat/runs/:run_id", h.GetRunState)

	r.GET("/messages/:id", h.GetMessage)
	r.GET("/sessions/:id/messages", h.GetSessionMessages)
	r.GET("/groups/:id/messages", h.GetGroupMessages)
}

// GetMessage returns a single message by id
// GET /api/v1/messages/:id
func (h *ChatHandler) GetMessage(c *gin.Context) {
	msg, err := h.chatService.GetMessage(c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ChatStream runs one streaming turn over SSE
// POST /api/v1/chat/stream
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req models.ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering

	chunks, err := h.chatService.ChatStream(c.Request.Context(), &req)
	if err != nil {
		c.SSEvent("error", gin.H{
			"error_code": service.ErrorCode(err),
			"error":      err.Error(),
		})
		return
	}

	w := c.Writer
	for chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		w.Flush()
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	w.Flush()
}

// CancelStream cancels an active run
// POST /api/v1/chat/cancel
func (h *ChatHandler) CancelStream(c *gin.Context) {
	var req struct {
		RunID string `json:"run_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RunID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run_id is required"})
		return
	}

	if err := h.chatService.CancelStream(req.RunID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// GetRunState returns the live state of a streaming run
// GET /api/v1/chat/runs/:run_id
func (h *ChatHandler) GetRunState(c *gin.Context) {
	runID := c.Param("run_id")
	state := h.chatService.GetStreamState(runID)
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active run"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetSessionMessages pages a standalone session's timeline
// GET /api/v1/sessions/:id/messages?limit=50&offset=0
func (h *ChatHandler) GetSessionMessages(c *gin.Context) {
	sessionID := c.Param("id")
	limit, offset := pageParams(c)

	messages, hasMore, err := h.chatService.ListSessionMessages(c.Request.Context(), sessionID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "has_more": hasMore})
}

// GetGroupMessages pages a group's shared timeline in sequence order
// GET /api/v1/groups/:id/messages?limit=50&offset=0
func (h *ChatHandler) GetGroupMessages(c *gin.Context) {
	groupID := c.Param("id")
	limit, offset := pageParams(c)

	messages, hasMore, err := h.chatService.ListGroupMessages(c.Request.Context(), groupID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "has_more": hasMore})
}

func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// statusFromError maps service errors to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmptyContent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
