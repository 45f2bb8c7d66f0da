// Package agent runs conversational turns: it streams a message through the
// model transport, executes the tools the model asks for and reports
// progress as chunks.
package agent

type ChunkType string

const (
	ChunkText    ChunkType = "text"
	ChunkToolUse ChunkType = "tool_use"
	ChunkDone    ChunkType = "done"
	ChunkError   ChunkType = "error"
)

// Chunk is one element of a turn's output stream. A turn ends with exactly
// one done or error chunk.
type Chunk struct {
	Type    ChunkType      `json:"type"`
	Content string         `json:"content,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Input   map[string]any `json:"input,omitempty"`
}

// Terminal reports whether c ends a turn.
func (c Chunk) Terminal() bool {
	return c.Type == ChunkDone || c.Type == ChunkError
}

// Sink receives chunks in order from the goroutine running the turn.
type Sink func(Chunk)

func errorChunk(msg string) Chunk {
	return Chunk{Type: ChunkError, Content: msg}
}
