// Database model for per-group sequence counters
package db

// GroupSequence holds the last issued sequence number for a group. The
// counter is advanced with a single atomic upsert so every service instance
// sharing the database shares the same sequence space.
type GroupSequence struct {
	GroupID string `json:"group_id" gorm:"primaryKey;size:36"`
	Value   int64  `json:"value" gorm:"not null;default:0"`
}

func (GroupSequence) TableName() string {
	return "group_sequences"
}
