// Compression service for group conversation history management
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prdagent/prdagent/pkg/cache"
	"github.com/prdagent/prdagent/pkg/config"
	"github.com/prdagent/prdagent/pkg/db"
	"github.com/prdagent/prdagent/pkg/models"
	"github.com/prdagent/prdagent/pkg/utils"
)

// CompressionPlan is the result of planning a compression pass. ToCompress
// holds the older messages to fold into the summary (oldest first), KeepRaw
// the newer messages retained verbatim.
type CompressionPlan struct {
	ShouldCompress bool
	ToCompress     []models.Message
	KeepRaw        []models.Message
}

// PlanCompression partitions not-yet-compressed messages into a compress
// prefix and a keep suffix. Scanning from the newest message backward,
// messages are kept until at least minKeepCount messages AND at least
// targetKeepChars characters are retained; everything older is compressed.
// No compression happens while total content is at or under threshold, or
// while the group has fewer than minKeepCount messages.
func PlanCompression(messages []models.Message, threshold, targetKeepChars, minKeepCount int) CompressionPlan {
	plan := CompressionPlan{KeepRaw: messages}

	totalChars := 0
	for _, m := range messages {
		totalChars += len(m.Content)
	}
	if totalChars <= threshold || len(messages) < minKeepCount {
		return plan
	}

	keepChars := 0
	cut := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		kept := len(messages) - i
		if kept > minKeepCount && keepChars >= targetKeepChars {
			break
		}
		keepChars += len(messages[i].Content)
		cut = i
	}

	if cut == 0 {
		// Everything is recent; nothing eligible yet.
		return plan
	}
	plan.ShouldCompress = true
	plan.ToCompress = messages[:cut]
	plan.KeepRaw = messages[cut:]
	return plan
}

// ForcePlan compresses a prefix of messages even when the normal plan found
// nothing eligible, leaving at least 2 raw messages.
func ForcePlan(messages []models.Message) CompressionPlan {
	if len(messages) <= 2 {
		return CompressionPlan{KeepRaw: messages}
	}
	cut := len(messages) - 2
	return CompressionPlan{
		ShouldCompress: true,
		ToCompress:     messages[:cut],
		KeepRaw:        messages[cut:],
	}
}

// CompressionService folds old group history into running summaries.
type CompressionService struct {
	db           *gorm.DB
	modelService InvokerResolver
	cache        *cache.Cache
	config       *config.AppConfig
	logger       *slog.Logger

	mu     sync.Mutex
	groups map[string]*sync.Mutex
}

// NewCompressionService creates a new compression service
func NewCompressionService(database *gorm.DB, modelService InvokerResolver, kv *cache.Cache, cfg *config.AppConfig) *CompressionService {
	return &CompressionService{
		db:           database,
		modelService: modelService,
		cache:        kv,
		config:       cfg,
		logger:       utils.GetLogger(),
		groups:       make(map[string]*sync.Mutex),
	}
}

// AutoMigrate creates database tables
func (s *CompressionService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.GroupCompressionState{})
}

func (s *CompressionService) groupLock(groupID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.groups[groupID]
	if !ok {
		l = &sync.Mutex{}
		s.groups[groupID] = l
	}
	return l
}

func checkpointCacheKey(groupID string) string {
	return "prdagent:compress:" + groupID
}

// Checkpoint returns the live compression checkpoint for a group, or nil.
func (s *CompressionService) Checkpoint(ctx context.Context, groupID string) (*models.GroupCompressionState, error) {
	var cached models.GroupCompressionState
	if s.cache.GetJSON(ctx, checkpointCacheKey(groupID), &cached) {
		return &cached, nil
	}

	var state models.GroupCompressionState
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).
		Order("to_seq DESC").First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	s.cache.SetJSON(ctx, checkpointCacheKey(groupID), &state, time.Hour)
	return &state, nil
}

// UncompressedMessages returns completed messages newer than the checkpoint,
// ordered by sequence number.
func (s *CompressionService) UncompressedMessages(ctx context.Context, groupID string) ([]models.Message, *models.GroupCompressionState, error) {
	checkpoint, err := s.Checkpoint(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	q := s.db.WithContext(ctx).Where("group_id = ? AND status = ?", groupID, db.MessageStatusCompleted)
	if checkpoint != nil {
		q = q.Where("seq_number > ?", checkpoint.ToSeq)
	}
	var messages []models.Message
	if err := q.Order("seq_number ASC").Find(&messages).Error; err != nil {
		return nil, nil, err
	}
	return messages, checkpoint, nil
}

// CheckAndCompress compresses the group's history when it exceeds the
// configured character threshold. triggerHint is the content of the turn
// that triggered the pass; the summarizer is told to preserve material
// relevant to it. Returns nil without error when nothing was compressed.
func (s *CompressionService) CheckAndCompress(ctx context.Context, groupID, triggerHint string) (*models.GroupCompressionState, error) {
	return s.compress(ctx, groupID, triggerHint, false)
}

// ForceCompress compresses a group's history regardless of the threshold,
// leaving only the last two messages raw. Backs the manual trigger.
func (s *CompressionService) ForceCompress(ctx context.Context, groupID, triggerHint string) (*models.GroupCompressionState, error) {
	return s.compress(ctx, groupID, triggerHint, true)
}

func (s *CompressionService) compress(ctx context.Context, groupID, triggerHint string, force bool) (*models.GroupCompressionState, error) {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	messages, checkpoint, err := s.UncompressedMessages(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var plan CompressionPlan
	if force {
		plan = ForcePlan(messages)
	} else {
		threshold := s.config.CompressionThreshold()
		plan = PlanCompression(messages, threshold, s.config.TargetKeepChars(), s.config.MinKeepMessages())
		if !plan.ShouldCompress {
			totalChars := 0
			for _, m := range messages {
				totalChars += len(m.Content)
			}
			if totalChars <= threshold {
				return nil, nil
			}
			// Over threshold but everything looked recent.
			plan = ForcePlan(messages)
		}
	}
	if !plan.ShouldCompress {
		return nil, nil
	}

	summary, err := s.summarize(ctx, checkpoint, plan.ToCompress, triggerHint)
	if err != nil {
		// Fail open: the turn proceeds with uncompressed history.
		s.logger.Warn("Compression summarization failed", "groupID", groupID, "error", err)
		return nil, nil
	}

	originalChars := 0
	for _, m := range plan.ToCompress {
		originalChars += len(m.Content)
	}
	fromSeq := plan.ToCompress[0].Seq()
	if checkpoint != nil {
		fromSeq = checkpoint.FromSeq
	}
	state := &models.GroupCompressionState{
		ID:              uuid.New().String(),
		GroupID:         groupID,
		FromSeq:         fromSeq,
		ToSeq:           plan.ToCompress[len(plan.ToCompress)-1].Seq(),
		Summary:         summary,
		OriginalChars:   originalChars,
		CompressedChars: len(summary),
		MessageCount:    len(plan.ToCompress),
		CreatedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(state).Error; err != nil {
		return nil, fmt.Errorf("failed to persist compression checkpoint: %w", err)
	}
	s.cache.SetJSON(ctx, checkpointCacheKey(groupID), state, time.Hour)

	s.logger.Info("Group history compressed",
		"groupID", groupID,
		"messages", state.MessageCount,
		"fromSeq", state.FromSeq,
		"toSeq", state.ToSeq,
		"originalChars", state.OriginalChars,
		"compressedChars", state.CompressedChars)

	return state, nil
}

// summarize issues one model call folding toCompress (plus any previous
// summary) into a new running summary.
func (s *CompressionService) summarize(ctx context.Context, checkpoint *models.GroupCompressionState, toCompress []models.Message, triggerHint string) (string, error) {
	var convText strings.Builder
	for _, msg := range toCompress {
		if msg.Content == "" {
			continue
		}
		convText.WriteString(fmt.Sprintf("[%s]: %s\n\n", msg.Role, msg.Content))
	}

	var sb strings.Builder
	sb.WriteString(`Condense the following product discussion history into a running summary.

Requirements:
1. Preserve all facts, decisions, constraints and open items.
2. Discard greetings and small talk.
3. Never invent content that is not in the history.
4. Do not copy document text into the summary; refer to sections by name.
5. Output the summary text only, no preamble.
`)
	if triggerHint != "" {
		sb.WriteString("\nThe discussion is currently about: " + triggerHint + "\nKeep everything relevant to it.\n")
	}
	if checkpoint != nil && checkpoint.Summary != "" {
		sb.WriteString("\nExisting summary of even earlier history (fold it in):\n")
		sb.WriteString(checkpoint.Summary)
		sb.WriteString("\n")
	}
	sb.WriteString("\nHistory to condense:\n")
	sb.WriteString(convText.String())

	invoker, err := s.modelService.ResolveInvoker(ctx, "", s.config.DefaultModel())
	if err != nil {
		return "", err
	}
	resp, err := invoker.Generate(ctx, []*schema.Message{schema.UserMessage(sb.String())})
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("summary generation returned empty content")
	}
	return summary, nil
}

// BuildSummaryContext renders a checkpoint as a prompt segment. The block is
// labeled as derived material so the model does not treat it as source text.
func BuildSummaryContext(checkpoint *models.GroupCompressionState) string {
	if checkpoint == nil || checkpoint.Summary == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("=== EARLIER DISCUSSION (compressed summary, derived material) ===\n")
	sb.WriteString(checkpoint.Summary)
	sb.WriteString("\n=== END OF SUMMARY ===\n")
	sb.WriteString("The following are recent messages kept verbatim:\n")
	return sb.String()
}

// InvalidateCheckpoint drops the cached checkpoint for a group.
func (s *CompressionService) InvalidateCheckpoint(ctx context.Context, groupID string) {
	s.cache.Delete(ctx, checkpointCacheKey(groupID))
}
