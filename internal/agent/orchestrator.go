package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"taskpilot/internal/llm"
	"taskpilot/internal/observability"
	"taskpilot/internal/tools"
)

const (
	DefaultMaxTurns = 25
)

// Executor runs tools on the model's behalf.
type Executor interface {
	Specs() []llm.ToolSpec
	Execute(ctx context.Context, name string, input map[string]any) tools.Result
}

// Config bounds a turn.
type Config struct {
	Model     string
	MaxTokens int
	// MaxTurns caps model round trips per user message.
	MaxTurns int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = llm.DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = llm.DefaultMaxTokens
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	return c
}

// Orchestrator drives one turn: it streams from the transport, runs every
// requested tool in order and loops until a round requests none.
type Orchestrator struct {
	transport llm.Transport
	executor  Executor
	cfg       Config
	logger    *slog.Logger
	tracer    *observability.Tracer
	metrics   *observability.Metrics
}

func NewOrchestrator(transport llm.Transport, executor Executor, cfg Config) *Orchestrator {
	return &Orchestrator{
		transport: transport,
		executor:  executor,
		cfg:       cfg.withDefaults(),
		logger:    slog.New(slog.DiscardHandler),
	}
}

// TurnResult is the state a finished turn leaves behind.
type TurnResult struct {
	// Messages is the full conversation including this turn.
	Messages []llm.Message
	// Handle is the session handle from the first session event, or the
	// one passed in.
	Handle string
}

// Run executes a turn over history, which must already end with the user
// message. Text and tool_use chunks go to emit; the caller emits the
// terminal chunk from the returned error. Nothing is emitted once ctx is
// done.
func (o *Orchestrator) Run(ctx context.Context, system string, history []llm.Message, handle string, emit Sink) (TurnResult, error) {
	messages := append([]llm.Message(nil), history...)
	result := func() TurnResult { return TurnResult{Messages: messages, Handle: handle} }

	send := func(c Chunk) bool {
		if ctx.Err() != nil {
			return false
		}
		emit(c)
		return true
	}

	for round := 1; ; round++ {
		if round > o.cfg.MaxTurns {
			return result(), fmt.Errorf("%w: stopped after %d rounds", ErrMaxTurns, o.cfg.MaxTurns)
		}
		if err := ctx.Err(); err != nil {
			return result(), err
		}

		req := &llm.Request{
			Model:         o.cfg.Model,
			MaxTokens:     o.cfg.MaxTokens,
			System:        system,
			Messages:      messages,
			Tools:         o.executor.Specs(),
			SessionHandle: handle,
		}
		assistant, results, newHandle, err := o.round(ctx, req, round, send)
		if handle == "" {
			handle = newHandle
		}
		if err != nil {
			return result(), err
		}

		if len(assistant.Blocks) > 0 {
			messages = append(messages, assistant)
		}
		if len(results) == 0 {
			return result(), nil
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Blocks: results})
	}
}

// round streams one model response. It returns the assistant message, the
// tool_result blocks answering its calls and the first session handle seen.
func (o *Orchestrator) round(ctx context.Context, req *llm.Request, n int, send func(Chunk) bool) (llm.Message, []llm.Block, string, error) {
	ctx, span := o.tracer.TraceModelRequest(ctx, req.Model, n)
	defer span.End()
	o.metrics.RecordModelRequest()

	assistant := llm.Message{Role: llm.RoleAssistant}
	var results []llm.Block
	var handle string

	stream, err := o.transport.Stream(ctx, req)
	if err != nil {
		observability.RecordError(span, err)
		return assistant, nil, "", err
	}
	defer stream.Close()

	var text strings.Builder
	flushText := func() {
		if text.Len() > 0 {
			assistant.Blocks = append(assistant.Blocks, llm.TextBlock(text.String()))
			text.Reset()
		}
	}

	for stream.Next() {
		if ctx.Err() != nil {
			break
		}
		ev := stream.Event()
		switch ev.Kind {
		case llm.EventSession:
			if handle == "" {
				handle = ev.Handle
			}

		case llm.EventText:
			text.WriteString(ev.Text)
			send(Chunk{Type: ChunkText, Content: ev.Text})

		case llm.EventToolUse:
			flushText()
			call := ev.Call
			if call.Input == nil {
				call.Input = map[string]any{}
			}
			assistant.Blocks = append(assistant.Blocks, llm.ToolUseBlock(call))
			if !send(Chunk{Type: ChunkToolUse, Tool: call.Name, Input: call.Input}) {
				continue
			}

			res := o.executor.Execute(ctx, call.Name, call.Input)
			payload, err := json.Marshal(res)
			if err != nil {
				o.logger.Error("failed to encode tool result", "tool", call.Name, "error", err)
				payload, _ = json.Marshal(tools.Result{Error: "tool result could not be encoded"})
				res.Success = false
			}
			results = append(results, llm.ToolResultBlock(call.ID, string(payload), !res.Success))
		}
	}

	if err := ctx.Err(); err != nil {
		return assistant, nil, handle, err
	}
	if err := stream.Err(); err != nil {
		observability.RecordError(span, err)
		return assistant, nil, handle, err
	}
	flushText()
	return assistant, results, handle, nil
}
