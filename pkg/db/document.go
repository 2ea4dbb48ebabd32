// Database model for uploaded requirement documents
package db

import "time"

// Document stores an uploaded requirements document. RawContent (markdown)
// is the canonical representation; citation extraction re-derives headings
// from it directly so citation anchors match the document renderer.
type Document struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	Title      string `json:"title" gorm:"size:300;not null"`
	RawContent string `json:"raw_content" gorm:"type:text;not null"`
	Size       int    `json:"size"`
	UploaderID string `json:"uploader_id,omitempty" gorm:"index;size:36"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}
