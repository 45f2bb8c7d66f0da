// Package llm is the model client boundary: a streaming Transport plus the
// message and tool shapes exchanged with it.
package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// Block is one content block of a message. Which fields are set depends on
// Kind.
type Block struct {
	Kind BlockKind `json:"kind"`

	Text string `json:"text,omitempty"`

	// tool_use
	Call *ToolCall `json:"call,omitempty"`

	// tool_result
	ToolUseID string `json:"toolUseId,omitempty"`
	Result    string `json:"result,omitempty"`
	IsError   bool   `json:"isError,omitempty"`
}

func TextBlock(text string) Block {
	return Block{Kind: BlockText, Text: text}
}

func ToolUseBlock(call ToolCall) Block {
	return Block{Kind: BlockToolUse, Call: &call}
}

func ToolResultBlock(toolUseID, result string, isError bool) Block {
	return Block{Kind: BlockToolResult, ToolUseID: toolUseID, Result: result, IsError: isError}
}

type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"blocks"`
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Kind == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolCall is a model request to run a named tool.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolSpec declares one tool to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

type Request struct {
	Model     string
	MaxTokens int
	System    string
	Messages  []Message
	Tools     []ToolSpec
	// SessionHandle resumes a server-side conversation on transports that
	// keep one. Stateless transports ignore it and rely on Messages.
	SessionHandle string
}

type EventKind int

const (
	// EventSession carries a resumable transport's conversation handle.
	EventSession EventKind = iota
	EventText
	EventToolUse
)

func (k EventKind) String() string {
	switch k {
	case EventSession:
		return "session"
	case EventText:
		return "text"
	case EventToolUse:
		return "tool_use"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind   EventKind
	Text   string
	Call   ToolCall
	Handle string
}

// EventStream is iterated like bufio.Scanner: call Next until it returns
// false, then check Err.
type EventStream interface {
	Next() bool
	Event() Event
	Err() error
	Close() error
}

// Transport opens one streamed model exchange. Cancelling ctx aborts it.
type Transport interface {
	Stream(ctx context.Context, req *Request) (EventStream, error)
}
