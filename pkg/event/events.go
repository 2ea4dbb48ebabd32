package event

import "github.com/prdagent/prdagent/pkg/models"

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	ChatMessage        = "chat.message"
	ChatMessageUpdated = "chat.messageUpdated"
	ChatDelta          = "chat.delta"
	ChatBlockEnd       = "chat.blockEnd"
	ChatCitations      = "chat.citations"
	GroupCompressed    = "group.compressed"
)

// ============================================================================
// Chat Events
// ============================================================================

// MessageCreatedEvent is emitted when a new message joins a group timeline
// (a user turn, or the assistant placeholder at first output byte).
type MessageCreatedEvent struct {
	GroupID string          `json:"group_id"`
	Message *models.Message `json:"message"`
}

func (e MessageCreatedEvent) EventName() string { return ChatMessage }

// MessageUpdatedEvent is emitted when an existing message is finalized or
// otherwise changed in place (placeholder -> complete assistant turn).
type MessageUpdatedEvent struct {
	GroupID string          `json:"group_id"`
	Message *models.Message `json:"message"`
}

func (e MessageUpdatedEvent) EventName() string { return ChatMessageUpdated }

// MessageDeltaEvent carries one incremental block fragment of an in-flight
// assistant turn to every group member.
type MessageDeltaEvent struct {
	GroupID   string `json:"group_id"`
	MessageID string `json:"message_id"`
	BlockID   string `json:"block_id"`
	BlockKind string `json:"block_kind"`
	Content   string `json:"content"`
	Language  string `json:"language,omitempty"`
	First     bool   `json:"first"` // first fragment of this block
}

func (e MessageDeltaEvent) EventName() string { return ChatDelta }

// BlockEndEvent closes one streamed block.
type BlockEndEvent struct {
	GroupID   string `json:"group_id"`
	MessageID string `json:"message_id"`
	BlockID   string `json:"block_id"`
	BlockKind string `json:"block_kind"`
}

func (e BlockEndEvent) EventName() string { return ChatBlockEnd }

// CitationsEvent delivers the ranked citations for a completed answer.
type CitationsEvent struct {
	GroupID   string            `json:"group_id"`
	MessageID string            `json:"message_id"`
	Citations []models.Citation `json:"citations"`
}

func (e CitationsEvent) EventName() string { return ChatCitations }

// GroupCompressedEvent is emitted after a new compression checkpoint is
// written for a group.
type GroupCompressedEvent struct {
	GroupID string `json:"group_id"`
	FromSeq int64  `json:"from_seq"`
	ToSeq   int64  `json:"to_seq"`
}

func (e GroupCompressedEvent) EventName() string { return GroupCompressed }
