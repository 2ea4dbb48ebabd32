// API types for the streaming chat pipeline
package models

import (
	"github.com/prdagent/prdagent/pkg/db"
)

// ========== Type aliases for database types ==========
// These allow other packages to use models.Message instead of db.Message

type Message = db.Message
type TokenUsage = db.TokenUsage
type Session = db.Session
type Group = db.Group
type GroupMember = db.GroupMember
type Document = db.Document
type GroupCompressionState = db.GroupCompressionState

// ========== Constant aliases from db package ==========

const (
	RoleUser      = db.RoleUser
	RoleAssistant = db.RoleAssistant
	RoleSystem    = db.RoleSystem
)

const (
	MessageStatusPending   = db.MessageStatusPending
	MessageStatusStreaming = db.MessageStatusStreaming
	MessageStatusCompleted = db.MessageStatusCompleted
	MessageStatusError     = db.MessageStatusError
	MessageStatusCancelled = db.MessageStatusCancelled
)

const (
	FinishReasonStop      = db.FinishReasonStop
	FinishReasonError     = db.FinishReasonError
	FinishReasonCancelled = db.FinishReasonCancelled
)

// ========== Chat stream API types ==========

// ChatStreamRequest starts one turn of the chat pipeline.
type ChatStreamRequest struct {
	SessionID string `json:"session_id"`
	GroupID   string `json:"group_id,omitempty"`
	Content   string `json:"content"`

	// AssistantRole selects which role-specific assistant answers in a
	// group chat (e.g. "product", "architect"). Empty means the default.
	AssistantRole string `json:"assistant_role,omitempty"`

	ReplyToID string `json:"reply_to_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// Stream chunk types, one per pipeline event.
const (
	ChunkTypeStart      = "start"
	ChunkTypeBlockStart = "blockStart"
	ChunkTypeBlockDelta = "blockDelta"
	ChunkTypeBlockEnd   = "blockEnd"
	ChunkTypeCitations  = "citations"
	ChunkTypeError      = "error"
	ChunkTypeDone       = "done"
)

// StreamChunk is one SSE event delivered to the requesting client.
type StreamChunk struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`

	// Block protocol fields (blockStart/blockDelta/blockEnd).
	BlockID   string `json:"block_id,omitempty"`
	BlockKind string `json:"block_kind,omitempty"`
	Content   string `json:"content,omitempty"`
	Language  string `json:"language,omitempty"`

	Citations []Citation  `json:"citations,omitempty"`
	Usage     *TokenUsage `json:"usage,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Created int64 `json:"created,omitempty"` // Unix ms
}

// Citation is one traceable excerpt linking an answer back to the source
// document. HeadingID resolves to the same in-document anchor the document
// viewer computes for the heading.
type Citation struct {
	HeadingTitle string  `json:"heading_title"`
	HeadingID    string  `json:"heading_id"`
	Excerpt      string  `json:"excerpt"`
	Score        float64 `json:"score"`
	Rank         int     `json:"rank"`
}

// ========== Session / group / document request types ==========

type CreateSessionRequest struct {
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id,omitempty"`
	Title      string `json:"title,omitempty"`
}

type CreateGroupRequest struct {
	Name       string `json:"name"`
	DocumentID string `json:"document_id"`
	OwnerID    string `json:"owner_id"`
}

type JoinGroupRequest struct {
	UserID string `json:"user_id"`
}

type UploadDocumentRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	UploaderID string `json:"uploader_id,omitempty"`
}
