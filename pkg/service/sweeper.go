// Background compression sweep over active groups
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/prdagent/prdagent/pkg/db"
	"github.com/prdagent/prdagent/pkg/utils"
)

// CompressionSweeper periodically compresses groups whose history grew past
// the threshold between turns, so the next turn starts from a warm
// checkpoint instead of paying for compression inline.
type CompressionSweeper struct {
	db          *gorm.DB
	compression *CompressionService
	cron        *cron.Cron
	logger      *slog.Logger
}

// NewCompressionSweeper creates a new sweeper.
func NewCompressionSweeper(database *gorm.DB, compression *CompressionService) *CompressionSweeper {
	return &CompressionSweeper{
		db:          database,
		compression: compression,
		cron:        cron.New(),
		logger:      utils.GetLogger(),
	}
}

// Start schedules the sweep every 10 minutes.
func (s *CompressionSweeper) Start() error {
	if _, err := s.cron.AddFunc("@every 10m", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *CompressionSweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *CompressionSweeper) sweep() {
	var groupIDs []string
	err := s.db.Model(&db.Group{}).Where("status = ?", db.SessionStatusActive).
		Pluck("id", &groupIDs).Error
	if err != nil {
		s.logger.Error("Compression sweep failed to list groups", "error", err)
		return
	}

	for _, groupID := range groupIDs {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		state, err := s.compression.CheckAndCompress(ctx, groupID, "")
		cancel()
		if err != nil {
			s.logger.Warn("Compression sweep failed for group", "groupID", groupID, "error", err)
			continue
		}
		if state != nil {
			s.logger.Info("Compression sweep compressed group",
				"groupID", groupID, "toSeq", state.ToSeq)
		}
	}
}
