package agent

import (
	"context"
	"errors"
	"os/exec"

	"taskpilot/internal/llm"
)

var (
	// ErrBusy rejects a send while another turn is in flight.
	ErrBusy = errors.New("already processing a message")
	// ErrCancelled ends a turn stopped by Cancel.
	ErrCancelled = errors.New("message cancelled")
	// ErrMaxTurns ends a turn whose tool loop hit the configured ceiling.
	ErrMaxTurns = errors.New("too many tool rounds")
)

// User-facing messages for terminal error chunks.
const (
	MsgCancelled     = "Message cancelled."
	MsgUnauthorized  = "Invalid API key. Please check your Anthropic API key."
	MsgRateLimited   = "Rate limit exceeded. Please wait a moment and try again."
	MsgUnavailable   = "Could not connect to the Anthropic API. Check your internet connection."
	MsgCLINotFound   = "Required CLI not found. Install it with: npm install -g @anthropic-ai/claude-code"
	MsgNoCredentials = "No API key set. Please set your Anthropic API key first."
	MsgNoWorkspace   = "No project folder selected"
)

// Classify maps a turn failure to the message shown to the user.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return MsgCancelled
	case errors.Is(err, llm.ErrUnauthorized):
		return MsgUnauthorized
	case errors.Is(err, llm.ErrRateLimited):
		return MsgRateLimited
	case errors.Is(err, llm.ErrUnavailable):
		return MsgUnavailable
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, llm.ErrCLINotFound):
		return MsgCLINotFound
	default:
		return "Error: " + err.Error()
	}
}

// outcome labels a finished turn for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
