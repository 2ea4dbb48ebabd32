package event

import "github.com/prdagent/prdagent/pkg/models"

// GroupBus is the broadcast surface the chat pipeline publishes to. Every
// call is fire-and-forget: delivery never blocks token streaming, and a
// failed or slow subscriber never aborts a turn.
type GroupBus struct {
	emitter *Emitter
}

// NewGroupBus creates a bus over the given emitter.
func NewGroupBus(emitter *Emitter) *GroupBus {
	return &GroupBus{emitter: emitter}
}

// Publish announces a newly created message to the group.
func (b *GroupBus) Publish(groupID string, msg *models.Message) {
	if groupID == "" {
		return
	}
	b.emitter.Emit(MessageCreatedEvent{GroupID: groupID, Message: msg})
}

// PublishUpdated announces an in-place update of an existing message
// (the placeholder -> finalized transition), not a new message.
func (b *GroupBus) PublishUpdated(groupID string, msg *models.Message) {
	if groupID == "" {
		return
	}
	b.emitter.Emit(MessageUpdatedEvent{GroupID: groupID, Message: msg})
}

// PublishDelta fans one block fragment out to the group.
func (b *GroupBus) PublishDelta(groupID, messageID, blockID, blockKind, content, language string, first bool) {
	if groupID == "" {
		return
	}
	b.emitter.Emit(MessageDeltaEvent{
		GroupID:   groupID,
		MessageID: messageID,
		BlockID:   blockID,
		BlockKind: blockKind,
		Content:   content,
		Language:  language,
		First:     first,
	})
}

// PublishBlockEnd closes a streamed block for the group.
func (b *GroupBus) PublishBlockEnd(groupID, messageID, blockID, blockKind string) {
	if groupID == "" {
		return
	}
	b.emitter.Emit(BlockEndEvent{GroupID: groupID, MessageID: messageID, BlockID: blockID, BlockKind: blockKind})
}

// PublishCitations delivers the completed answer's citations to the group.
func (b *GroupBus) PublishCitations(groupID, messageID string, citations []models.Citation) {
	if groupID == "" {
		return
	}
	b.emitter.Emit(CitationsEvent{GroupID: groupID, MessageID: messageID, Citations: citations})
}
