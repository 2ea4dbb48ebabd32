// Group sequence allocation - the single ordering authority per group
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/prdagent/prdagent/pkg/db"
	"github.com/prdagent/prdagent/pkg/utils"
)

// SequenceService issues strictly increasing sequence numbers per group,
// starting at 1. Allocation is the single source of truth for message order
// in a group; insertion order of the messages table is not. The counter is
// advanced with one atomic upsert against the shared database, so every
// service instance draws from the same sequence space and two concurrent
// callers can never receive the same value.
//
// Gaps are fine: a message discarded after allocation still consumed its
// number, and readers must not treat a gap as corruption.
type SequenceService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSequenceService creates a new sequence service.
func NewSequenceService(database *gorm.DB) *SequenceService {
	return &SequenceService{
		db:     database,
		logger: utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *SequenceService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.GroupSequence{})
}

// Next allocates the next sequence number for a group.
func (s *SequenceService) Next(ctx context.Context, groupID string) (int64, error) {
	if groupID == "" {
		return 0, fmt.Errorf("sequence: empty group id")
	}

	var value int64
	err := s.db.WithContext(ctx).Raw(
		`INSERT INTO group_sequences (group_id, value) VALUES (?, 1)
		 ON CONFLICT(group_id) DO UPDATE SET value = group_sequences.value + 1
		 RETURNING value`, groupID).Scan(&value).Error
	if err != nil {
		return 0, fmt.Errorf("allocate sequence for group %s: %w", groupID, err)
	}
	return value, nil
}

// Current returns the last issued sequence number for a group, or 0 when
// the group has never allocated one.
func (s *SequenceService) Current(ctx context.Context, groupID string) (int64, error) {
	var row db.GroupSequence
	err := s.db.WithContext(ctx).First(&row, "group_id = ?", groupID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Value, nil
}
