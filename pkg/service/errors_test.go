package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrSessionNotFound, "SessionNotFound"},
		{ErrGroupNotFound, "GroupNotFound"},
		{ErrDocumentNotFound, "DocumentNotFound"},
		{ErrInvalidStage, "InvalidStage"},
		{ErrStreamCancelled, "Cancelled"},
		{ErrModelStream, "LlmError"},
		{errors.New("boom"), "LlmError"},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestErrorCodeWrappedCancellation(t *testing.T) {
	// A cancel landing while a collaborator call is in flight surfaces as a
	// wrapped context.Canceled, not as ErrStreamCancelled.
	err := fmt.Errorf("failed to allocate sequence: %w", context.Canceled)
	if got := ErrorCode(err); got != "Cancelled" {
		t.Fatalf("ErrorCode(%v) = %q, want %q", err, got, "Cancelled")
	}
}
