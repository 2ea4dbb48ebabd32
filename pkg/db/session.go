// Database models for chat sessions and groups
package db

import "time"

// Session represents a chat context for one user. A session either stands
// alone (1:1 chat with an assistant) or belongs to a group.
type Session struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	UserID     string `json:"user_id" gorm:"index;size:36;not null"`
	GroupID    string `json:"group_id,omitempty" gorm:"index;size:36"`
	DocumentID string `json:"document_id,omitempty" gorm:"size:36"`
	Title      string `json:"title" gorm:"size:200;default:'New Chat'"`
	Status     string `json:"status" gorm:"size:20;default:'active'"` // active, archived

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// Session status
const (
	SessionStatusActive   = "active"
	SessionStatusArchived = "archived"
)

// Group is a multi-participant chat context sharing one ordered message
// timeline and one document.
type Group struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	Name       string `json:"name" gorm:"size:200;not null"`
	DocumentID string `json:"document_id" gorm:"size:36;not null"`
	OwnerID    string `json:"owner_id" gorm:"index;size:36"`
	Status     string `json:"status" gorm:"size:20;default:'active'"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Group) TableName() string {
	return "groups"
}

// GroupMember links a user to a group.
type GroupMember struct {
	ID       string    `json:"id" gorm:"primaryKey;size:36"`
	GroupID  string    `json:"group_id" gorm:"index;size:36;not null"`
	UserID   string    `json:"user_id" gorm:"index;size:36;not null"`
	JoinedAt time.Time `json:"joined_at"`
}

func (GroupMember) TableName() string {
	return "group_members"
}
