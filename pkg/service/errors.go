// Error taxonomy shared by the chat pipeline and its handlers
package service

import (
	"context"
	"errors"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrInvalidStage     = errors.New("invalid pipeline stage transition")
	ErrModelStream      = errors.New("model stream failed")
	ErrStreamCancelled  = errors.New("stream cancelled")
	ErrEmptyContent     = errors.New("empty message content")
)

// ErrorCode maps a pipeline error to the wire-level error code surfaced in
// stream events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, ErrGroupNotFound):
		return "GroupNotFound"
	case errors.Is(err, ErrDocumentNotFound):
		return "DocumentNotFound"
	case errors.Is(err, ErrInvalidStage):
		return "InvalidStage"
	case errors.Is(err, ErrStreamCancelled), errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, ErrModelStream):
		return "LlmError"
	default:
		return "LlmError"
	}
}
