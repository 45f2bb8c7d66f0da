package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"

	"taskpilot/internal/llm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"cancelled", ErrCancelled, MsgCancelled},
		{"context canceled", context.Canceled, MsgCancelled},
		{"unauthorized", fmt.Errorf("stream: %w", llm.ErrUnauthorized), MsgUnauthorized},
		{"rate limited", fmt.Errorf("stream: %w", llm.ErrRateLimited), MsgRateLimited},
		{"unavailable", fmt.Errorf("dial: %w", llm.ErrUnavailable), MsgUnavailable},
		{"cli missing", &exec.Error{Name: "claude", Err: exec.ErrNotFound}, MsgCLINotFound},
		{"cli sentinel", llm.ErrCLINotFound, MsgCLINotFound},
		{"other", errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "done", outcome(nil))
	assert.Equal(t, "cancelled", outcome(ErrCancelled))
	assert.Equal(t, "error", outcome(ErrMaxTurns))
}

func TestChunkTerminal(t *testing.T) {
	assert.True(t, Chunk{Type: ChunkDone}.Terminal())
	assert.True(t, Chunk{Type: ChunkError}.Terminal())
	assert.False(t, Chunk{Type: ChunkText}.Terminal())
	assert.False(t, Chunk{Type: ChunkToolUse}.Terminal())
}
