// Database models for chat messages
package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Message represents one chat turn in a session or group.
//
// Ordering inside a group is defined solely by SeqNumber, assigned by the
// sequence service. Row insertion order is not trusted for ordering: a user
// message and the first token of an earlier assistant reply may race.
type Message struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	SessionID string `json:"session_id" gorm:"index;size:36;not null"`
	GroupID   string `json:"group_id,omitempty" gorm:"index;size:36"` // empty for 1:1 sessions

	Role    string `json:"role" gorm:"size:20;not null"` // user, assistant
	Content string `json:"content" gorm:"type:text"`     // mutable only while the assistant turn streams

	// Group-scoped sequence number. Nil until assigned, then immutable.
	SeqNumber *int64 `json:"seq_number,omitempty" gorm:"index"`

	// RunID groups a user turn with its assistant reply.
	RunID     string `json:"run_id,omitempty" gorm:"index;size:36"`
	ReplyToID string `json:"reply_to_id,omitempty" gorm:"size:36"`

	// Sender identity for group chats. For assistant turns this is the
	// role key of the responding assistant.
	SenderID      string `json:"sender_id,omitempty" gorm:"size:36"`
	AssistantRole string `json:"assistant_role,omitempty" gorm:"size:50"`

	Status       string      `json:"status" gorm:"size:20;default:'completed'"` // pending, streaming, completed, error, cancelled
	FinishReason string      `json:"finish_reason,omitempty" gorm:"size:20"`    // stop, error, cancelled
	Usage        *TokenUsage `json:"usage,omitempty" gorm:"type:text"`

	// For assistant turns CreatedAt is pinned to the time of the first
	// generated token, not completion time, so ordering reflects perceived
	// responsiveness.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*Message) TableName() string {
	return "messages"
}

// Seq returns the assigned sequence number, or 0 if none was assigned yet.
func (m *Message) Seq() int64 {
	if m.SeqNumber == nil {
		return 0
	}
	return *m.SeqNumber
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message status
const (
	MessageStatusPending   = "pending"
	MessageStatusStreaming = "streaming"
	MessageStatusCompleted = "completed"
	MessageStatusError     = "error"
	MessageStatusCancelled = "cancelled"
)

// Finish reasons
const (
	FinishReasonStop      = "stop"
	FinishReasonError     = "error"
	FinishReasonCancelled = "cancelled"
)

// TokenUsage holds token accounting for one assistant turn.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Value implements driver.Valuer for database storage
func (t *TokenUsage) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	if t.TotalTokens == 0 && t.PromptTokens == 0 && t.CompletionTokens == 0 {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for database retrieval
func (t *TokenUsage) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte or string failed")
	}
	return json.Unmarshal(bytes, t)
}
