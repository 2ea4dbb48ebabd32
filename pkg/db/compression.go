// Database model for group context compression checkpoints
package db

import "time"

// GroupCompressionState is the live compression checkpoint for a group. It
// covers the closed sequence range [FromSeq, ToSeq] of original messages
// already folded into Summary. Only the newest checkpoint per group is
// live; ToSeq strictly increases across successive checkpoints.
type GroupCompressionState struct {
	ID      string `json:"id" gorm:"primaryKey;size:36"`
	GroupID string `json:"group_id" gorm:"index;size:36;not null"`

	FromSeq int64 `json:"from_seq"`
	ToSeq   int64 `json:"to_seq" gorm:"index"`

	Summary string `json:"summary" gorm:"type:text"`

	OriginalChars   int `json:"original_chars"`
	CompressedChars int `json:"compressed_chars"`
	MessageCount    int `json:"message_count"`

	CreatedAt time.Time `json:"created_at"`
}

func (GroupCompressionState) TableName() string {
	return "group_compression_states"
}
