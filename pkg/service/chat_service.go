// Chat pipeline orchestrator for streaming document discussions
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
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
	"github.com/prdagent/prdagent/pkg/event"
	"github.com/prdagent/prdagent/pkg/models"
	"github.com/prdagent/prdagent/pkg/service/blockstream"
	"github.com/prdagent/prdagent/pkg/service/citation"
	"github.com/prdagent/prdagent/pkg/utils"
)

// Pipeline stages. A turn moves strictly forward; any attempt to move
// backward or skip Finalizing is a bug surfaced as ErrInvalidStage.
const (
	StageIdle               = "idle"
	StageAwaitingFirstToken = "awaitingFirstToken"
	StageStreaming          = "streaming"
	StageFlushing           = "flushing"
	StageFinalizing         = "finalizing"
	StageDone               = "done"
	StageErrored            = "errored"
)

var stageTransitions = map[string][]string{
	StageIdle:               {StageAwaitingFirstToken},
	StageAwaitingFirstToken: {StageStreaming, StageFlushing, StageErrored},
	StageStreaming:          {StageFlushing, StageErrored},
	StageFlushing:           {StageFinalizing, StageErrored},
	StageFinalizing:         {StageDone, StageErrored},
}

type pipelineStage struct {
	mu      sync.Mutex
	current string
}

func newPipelineStage() *pipelineStage {
	return &pipelineStage{current: StageIdle}
}

func (p *pipelineStage) advance(next string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, allowed := range stageTransitions[p.current] {
		if allowed == next {
			p.current = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStage, p.current, next)
}

func (p *pipelineStage) get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// StreamSession tracks one active streaming turn.
type StreamSession struct {
	RunID     string
	SessionID string
	GroupID   string
	Cancel    context.CancelFunc
	StartedAt time.Time
	Stage     *pipelineStage

	mu        sync.Mutex
	messageID string // assistant message, set at first token
}

func (ss *StreamSession) setMessageID(id string) {
	ss.mu.Lock()
	ss.messageID = id
	ss.mu.Unlock()
}

// MessageID returns the assistant message id, or "" before the first token.
func (ss *StreamSession) MessageID() string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.messageID
}

// Prompt segment kinds, concatenated in this order when assembling model
// input.
const (
	segmentDocument = "document"
	segmentSummary  = "summary"
	segmentHistory  = "history"
	segmentTurn     = "turn"
)

type promptSegment struct {
	kind string
	text string
}

const baseSystemPrompt = `You are a product assistant helping a team discuss and refine a requirements document.

Rules:
- Always respond in the SAME language the user uses.
- Ground every claim in the document or the discussion; never invent requirements.
- When you reference the document, name the section you are referencing.
- Be concise and concrete; prefer decisions and next steps over restating the document.`

// ChatService orchestrates one streaming turn end to end: sequence and
// persist the user message, stream the model answer through the block
// tokenizer, fan deltas out to the group, then extract citations and
// finalize the assistant message.
type ChatService struct {
	db              *gorm.DB
	modelService    InvokerResolver
	sessionService  *SessionService
	documentService *DocumentService
	compression     *CompressionService
	sequence        *SequenceService
	cache           *cache.Cache
	bus             *event.GroupBus
	config          *config.AppConfig
	logger          *slog.Logger

	activeStreams sync.Map // runID -> *StreamSession
}

// NewChatService creates a new chat service
func NewChatService(database *gorm.DB, modelService InvokerResolver, sessionService *SessionService,
	documentService *DocumentService, compression *CompressionService, sequence *SequenceService,
	kv *cache.Cache, bus *event.GroupBus, cfg *config.AppConfig) *ChatService {
	return &ChatService{
		db:              database,
		modelService:    modelService,
		sessionService:  sessionService,
		documentService: documentService,
		compression:     compression,
		sequence:        sequence,
		cache:           kv,
		bus:             bus,
		config:          cfg,
		logger:          utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *ChatService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.Message{})
}

// ========== Message access ==========

// GetMessage retrieves a single message
func (s *ChatService) GetMessage(id string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// SaveMessage saves a message to the database
func (s *ChatService) SaveMessage(msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	return s.db.Save(msg).Error
}

func historyCacheKey(scope, id string) string {
	return "prdagent:history:" + scope + ":" + id
}

// cachedHistoryPage is a group timeline's first page as stored in the cache,
// together with the limit it was fetched for. The stored rows only prove
// hasMore up to that limit, so a larger request must go back to the database.
type cachedHistoryPage struct {
	Limit    int              `json:"limit"`
	Messages []models.Message `json:"messages"`
}

// serve trims the cached page for a request. The bool reports whether the
// page can serve the request at all.
func (p cachedHistoryPage) serve(limit int) ([]models.Message, bool, bool) {
	if limit > p.Limit || len(p.Messages) == 0 {
		return nil, false, false
	}
	messages := p.Messages
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	return messages, hasMore, true
}

// ListGroupMessages pages a group's timeline in sequence order. The first
// page is served from cache when possible.
func (s *ChatService) ListGroupMessages(ctx context.Context, groupID string, limit, offset int) ([]models.Message, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	if offset == 0 {
		var page cachedHistoryPage
		if s.cache.GetJSON(ctx, historyCacheKey("group", groupID), &page) {
			if messages, hasMore, ok := page.serve(limit); ok {
				return messages, hasMore, nil
			}
		}
	}

	var messages []models.Message
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).
		Order("seq_number ASC").Limit(limit + 1).Offset(offset).Find(&messages).Error
	if err != nil {
		return nil, false, err
	}
	hasMore := len(messages) > limit
	if offset == 0 {
		s.cache.SetJSON(ctx, historyCacheKey("group", groupID),
			cachedHistoryPage{Limit: limit, Messages: messages}, 5*time.Minute)
	}
	if hasMore {
		messages = messages[:limit]
	}
	return messages, hasMore, nil
}

// ListSessionMessages pages a standalone session's timeline.
func (s *ChatService) ListSessionMessages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, bool, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []models.Message
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("seq_number ASC").Limit(limit + 1).Offset(offset).Find(&messages).Error
	if err != nil {
		return nil, false, err
	}
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	return messages, hasMore, nil
}

func (s *ChatService) invalidateHistory(ctx context.Context, groupID string) {
	if groupID != "" {
		s.cache.Delete(ctx, historyCacheKey("group", groupID))
	}
}

// ========== Streaming ==========

// ChatStream runs one turn of the pipeline. The user message is sequenced,
// persisted and broadcast before this returns; the returned channel carries
// the streaming block events for the assistant answer and is closed when the
// turn is finalized.
func (s *ChatService) ChatStream(ctx context.Context, req *models.ChatStreamRequest) (<-chan *models.StreamChunk, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}

	sess, err := s.sessionService.GetSession(req.SessionID)
	if err != nil {
		return nil, err
	}

	groupID := req.GroupID
	if groupID == "" {
		groupID = sess.GroupID
	}
	// Sequence numbers are scoped to the group timeline, or to the session
	// itself for 1:1 chats.
	scopeID := groupID
	if scopeID == "" {
		scopeID = sess.ID
	}

	var doc *models.Document
	if sess.DocumentID != "" {
		doc, err = s.documentService.Get(sess.DocumentID)
		if err != nil {
			return nil, err
		}
	}

	// Assemble context before the new turn lands in history.
	history, _, err := s.assembleModelInput(ctx, sess, groupID, doc, req)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()

	seq, err := s.sequence.Next(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	userMsg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		GroupID:   groupID,
		Role:      db.RoleUser,
		Content:   req.Content,
		SeqNumber: &seq,
		RunID:     runID,
		ReplyToID: req.ReplyToID,
		SenderID:  sess.UserID,
		Status:    db.MessageStatusCompleted,
	}
	if err := s.db.Create(userMsg).Error; err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	s.bus.Publish(groupID, userMsg)
	s.invalidateHistory(ctx, groupID)
	s.sessionService.Touch(sess.ID)

	chunks := make(chan *models.StreamChunk, 100)
	streamCtx, cancel := context.WithCancel(ctx)

	session := &StreamSession{
		RunID:     runID,
		SessionID: sess.ID,
		GroupID:   groupID,
		Cancel:    cancel,
		StartedAt: time.Now(),
		Stage:     newPipelineStage(),
	}
	s.activeStreams.Store(runID, session)

	go func() {
		defer close(chunks)
		defer s.activeStreams.Delete(runID)
		defer cancel()

		chunks <- &models.StreamChunk{
			Type:      models.ChunkTypeStart,
			MessageID: userMsg.ID,
			RunID:     runID,
			Created:   time.Now().UnixMilli(),
		}

		assistant, usage, err := s.runStream(streamCtx, session, sess, groupID, scopeID, userMsg.ID, req, history, chunks)
		if err != nil {
			s.finalizeError(session, groupID, runID, assistant, err, chunks)
		} else if assistant != nil {
			chunks <- &models.StreamChunk{
				Type:      models.ChunkTypeDone,
				MessageID: assistant.ID,
				RunID:     runID,
				Usage:     usage,
				Created:   time.Now().UnixMilli(),
			}
		} else {
			// Model produced no output at all; nothing was persisted for
			// the assistant side.
			chunks <- &models.StreamChunk{
				Type:    models.ChunkTypeDone,
				RunID:   runID,
				Created: time.Now().UnixMilli(),
			}
		}

		s.invalidateHistory(context.Background(), groupID)

		// Compression runs out of band; a failed pass never affects the turn.
		if groupID != "" {
			hint := req.Content
			go func() {
				cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer ccancel()
				if state, err := s.compression.CheckAndCompress(cctx, groupID, hint); err == nil && state != nil {
					event.Emit(event.GroupCompressedEvent{
						GroupID: groupID,
						FromSeq: state.FromSeq,
						ToSeq:   state.ToSeq,
					})
				}
			}()
		}
	}()

	return chunks, nil
}

// runStream drives the model stream through the block tokenizer. It returns
// the assistant message (nil if no token ever arrived) and the usage report.
func (s *ChatService) runStream(ctx context.Context, session *StreamSession, sess *models.Session,
	groupID, scopeID, userMsgID string, req *models.ChatStreamRequest, history []*schema.Message,
	chunks chan<- *models.StreamChunk) (assistant *models.Message, usage *models.TokenUsage, err error) {

	if err := session.Stage.advance(StageAwaitingFirstToken); err != nil {
		return nil, nil, err
	}

	invoker, err := s.modelService.ResolveInvoker(ctx, req.Model, s.config.DefaultModel())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrModelStream, err)
	}
	reader, err := invoker.Stream(ctx, history)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrModelStream, err)
	}
	defer reader.Close()

	tok := blockstream.NewTokenizer()
	var full strings.Builder
	defer func() {
		// Keep whatever partial content streamed for error finalization.
		if assistant != nil && assistant.Status == db.MessageStatusStreaming {
			assistant.Content = full.String()
		}
	}()

	emit := func(tokens []blockstream.BlockToken) {
		for _, bt := range tokens {
			switch bt.Type {
			case blockstream.TokenStart:
				chunks <- &models.StreamChunk{
					Type:      models.ChunkTypeBlockStart,
					MessageID: assistant.ID,
					RunID:     session.RunID,
					BlockID:   bt.BlockID,
					BlockKind: bt.Kind,
					Language:  bt.Language,
					Created:   time.Now().UnixMilli(),
				}
				s.bus.PublishDelta(groupID, assistant.ID, bt.BlockID, bt.Kind, "", bt.Language, true)
			case blockstream.TokenDelta:
				chunks <- &models.StreamChunk{
					Type:      models.ChunkTypeBlockDelta,
					MessageID: assistant.ID,
					RunID:     session.RunID,
					BlockID:   bt.BlockID,
					BlockKind: bt.Kind,
					Content:   bt.Content,
					Created:   time.Now().UnixMilli(),
				}
				s.bus.PublishDelta(groupID, assistant.ID, bt.BlockID, bt.Kind, bt.Content, "", false)
			case blockstream.TokenEnd:
				chunks <- &models.StreamChunk{
					Type:      models.ChunkTypeBlockEnd,
					MessageID: assistant.ID,
					RunID:     session.RunID,
					BlockID:   bt.BlockID,
					BlockKind: bt.Kind,
					Created:   time.Now().UnixMilli(),
				}
				s.bus.PublishBlockEnd(groupID, assistant.ID, bt.BlockID, bt.Kind)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return assistant, usage, ErrStreamCancelled
		default:
		}

		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return assistant, usage, ErrStreamCancelled
			}
			return assistant, usage, fmt.Errorf("%w: %v", ErrModelStream, err)
		}

		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			usage = &models.TokenUsage{
				PromptTokens:     msg.ResponseMeta.Usage.PromptTokens,
				CompletionTokens: msg.ResponseMeta.Usage.CompletionTokens,
				TotalTokens:      msg.ResponseMeta.Usage.TotalTokens,
			}
		}
		if msg.Content == "" {
			continue
		}

		if assistant == nil {
			// First token: the placeholder becomes visible to the group now,
			// with its timestamp pinned to this moment.
			seq, err := s.sequence.Next(ctx, scopeID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, usage, ErrStreamCancelled
				}
				return nil, usage, fmt.Errorf("failed to allocate sequence: %w", err)
			}
			now := time.Now()
			assistant = &models.Message{
				ID:            uuid.New().String(),
				SessionID:     sess.ID,
				GroupID:       groupID,
				Role:          db.RoleAssistant,
				SeqNumber:     &seq,
				RunID:         session.RunID,
				ReplyToID:     userMsgID,
				SenderID:      "assistant",
				AssistantRole: req.AssistantRole,
				Status:        db.MessageStatusStreaming,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.db.Create(assistant).Error; err != nil {
				if ctx.Err() != nil {
					return nil, usage, ErrStreamCancelled
				}
				return nil, usage, fmt.Errorf("failed to persist assistant placeholder: %w", err)
			}
			session.setMessageID(assistant.ID)
			s.bus.Publish(groupID, assistant)
			if err := session.Stage.advance(StageStreaming); err != nil {
				return assistant, usage, err
			}
		}

		full.WriteString(msg.Content)
		emit(tok.Push(msg.Content))
	}

	if err := session.Stage.advance(StageFlushing); err != nil {
		return assistant, usage, err
	}
	if assistant != nil {
		emit(tok.Flush())
	}
	if err := session.Stage.advance(StageFinalizing); err != nil {
		return assistant, usage, err
	}

	if assistant == nil {
		return nil, usage, nil
	}

	// Citations never fail a turn; an empty result is silent.
	if sess.DocumentID != "" {
		if doc, derr := s.documentService.Get(sess.DocumentID); derr == nil {
			citations := citation.Extract(doc.RawContent, full.String(), s.config.MaxCitations())
			if len(citations) > 0 {
				chunks <- &models.StreamChunk{
					Type:      models.ChunkTypeCitations,
					MessageID: assistant.ID,
					RunID:     session.RunID,
					Citations: citations,
					Created:   time.Now().UnixMilli(),
				}
				s.bus.PublishCitations(groupID, assistant.ID, citations)
			}
		}
	}

	assistant.Content = full.String()
	assistant.Status = db.MessageStatusCompleted
	assistant.FinishReason = db.FinishReasonStop
	assistant.Usage = usage
	assistant.UpdatedAt = time.Now()
	if err := s.SaveMessage(assistant); err != nil {
		return assistant, usage, fmt.Errorf("failed to finalize assistant message: %w", err)
	}
	s.bus.PublishUpdated(groupID, assistant)

	if err := session.Stage.advance(StageDone); err != nil {
		return assistant, usage, err
	}
	return assistant, usage, nil
}

// finalizeError records a failed or cancelled turn. The placeholder other
// participants already saw is kept, with whatever partial content streamed,
// rather than silently vanishing.
func (s *ChatService) finalizeError(session *StreamSession, groupID, runID string,
	assistant *models.Message, streamErr error, chunks chan<- *models.StreamChunk) {

	s.logger.Error("Chat stream failed", "runID", runID, "error", streamErr)
	session.Stage.mu.Lock()
	session.Stage.current = StageErrored
	session.Stage.mu.Unlock()

	cancelled := errors.Is(streamErr, ErrStreamCancelled) || errors.Is(streamErr, context.Canceled)

	if assistant != nil {
		status := db.MessageStatusError
		finish := db.FinishReasonError
		if cancelled {
			status = db.MessageStatusCancelled
			finish = db.FinishReasonCancelled
		}
		if !cancelled {
			if assistant.Content != "" {
				assistant.Content += "\n\n"
			}
			assistant.Content += "> ⚠️ The answer was interrupted by an error."
		}
		assistant.Status = status
		assistant.FinishReason = finish
		assistant.UpdatedAt = time.Now()
		if err := s.SaveMessage(assistant); err != nil {
			s.logger.Error("Failed to finalize errored message", "messageID", assistant.ID, "error", err)
		}
		s.bus.PublishUpdated(groupID, assistant)
	}

	messageID := ""
	if assistant != nil {
		messageID = assistant.ID
	}
	chunks <- &models.StreamChunk{
		Type:         models.ChunkTypeError,
		MessageID:    messageID,
		RunID:        runID,
		ErrorCode:    ErrorCode(streamErr),
		ErrorMessage: streamErr.Error(),
		Created:      time.Now().UnixMilli(),
	}
	chunks <- &models.StreamChunk{
		Type:      models.ChunkTypeDone,
		MessageID: messageID,
		RunID:     runID,
		Created:   time.Now().UnixMilli(),
	}
}

// CancelStream cancels an active run. Bookkeeping is completed by the
// streaming goroutine: the placeholder is finalized as cancelled, never left
// in progress.
func (s *ChatService) CancelStream(runID string) error {
	if session, ok := s.activeStreams.Load(runID); ok {
		session.(*StreamSession).Cancel()
	}
	return nil
}

// StreamState describes an active run.
type StreamState struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	GroupID   string    `json:"group_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Stage     string    `json:"stage"`
	StartedAt time.Time `json:"started_at"`
}

// GetStreamState returns the state of an active run, or nil.
func (s *ChatService) GetStreamState(runID string) *StreamState {
	session, ok := s.activeStreams.Load(runID)
	if !ok {
		return nil
	}
	ss := session.(*StreamSession)
	return &StreamState{
		RunID:     ss.RunID,
		SessionID: ss.SessionID,
		GroupID:   ss.GroupID,
		MessageID: ss.MessageID(),
		Stage:     ss.Stage.get(),
		StartedAt: ss.StartedAt,
	}
}

// ========== Model input assembly ==========

// assembleModelInput builds the ordered prompt segments for a turn: document
// context, then the compressed summary (derived material), then verbatim
// history newer than the checkpoint, then the new turn.
func (s *ChatService) assembleModelInput(ctx context.Context, sess *models.Session, groupID string,
	doc *models.Document, req *models.ChatStreamRequest) ([]*schema.Message, *models.GroupCompressionState, error) {

	var segments []promptSegment

	if doc != nil {
		var sb strings.Builder
		sb.WriteString("=== PRODUCT DOCUMENT: ")
		sb.WriteString(doc.Title)
		sb.WriteString(" ===\n")
		sb.WriteString(doc.RawContent)
		sb.WriteString("\n=== END OF DOCUMENT ===")
		segments = append(segments, promptSegment{kind: segmentDocument, text: sb.String()})
	}

	var checkpoint *models.GroupCompressionState
	var history []models.Message
	var err error
	if groupID != "" {
		history, checkpoint, err = s.compression.UncompressedMessages(ctx, groupID)
		if err != nil {
			return nil, nil, err
		}
		if summary := BuildSummaryContext(checkpoint); summary != "" {
			segments = append(segments, promptSegment{kind: segmentSummary, text: summary})
		}
	} else {
		err = s.db.WithContext(ctx).
			Where("session_id = ? AND status = ?", sess.ID, db.MessageStatusCompleted).
			Order("seq_number ASC").Find(&history).Error
		if err != nil {
			return nil, nil, err
		}
	}

	system := baseSystemPrompt
	if rolePrompt := s.config.AssistantRolePrompt(req.AssistantRole); rolePrompt != "" {
		system += "\n\n" + rolePrompt
	}
	for _, seg := range segments {
		system += "\n\n" + seg.text
	}

	input := []*schema.Message{schema.SystemMessage(system)}
	for i := range history {
		msg := &history[i]
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case db.RoleAssistant:
			input = append(input, schema.AssistantMessage(msg.Content, nil))
		default:
			content := msg.Content
			if groupID != "" && msg.SenderID != "" && msg.SenderID != "assistant" {
				content = "[" + msg.SenderID + "] " + content
			}
			input = append(input, schema.UserMessage(content))
		}
	}
	input = append(input, schema.UserMessage(req.Content))

	return input, checkpoint, nil
}
