package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const (
	DefaultModel     = "claude-opus-4-6"
	DefaultMaxTokens = 4096
)

// AnthropicConfig configures the Messages API transport.
type AnthropicConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint; empty means the SDK default.
	BaseURL    string
	HTTPClient *http.Client
}

// Anthropic streams exchanges through the Messages API. It never retries;
// failures surface to the caller immediately. The API keeps no server-side
// conversation, so the full history is replayed on every request; the
// stream emits no session events and Request.SessionHandle is ignored.
type Anthropic struct {
	client anthropic.Client
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Anthropic{client: anthropic.NewClient(opts...)}
}

func (a *Anthropic) Stream(ctx context.Context, req *Request) (EventStream, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}
	return &anthropicStream{stream: a.client.Messages.NewStreaming(ctx, params)}, nil
}

func buildParams(req *Request) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		content := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
		for _, b := range msg.Blocks {
			switch b.Kind {
			case BlockText:
				content = append(content, anthropic.NewTextBlock(b.Text))
			case BlockToolUse:
				if b.Call == nil {
					return nil, fmt.Errorf("tool_use block without call")
				}
				input := b.Call.Input
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(b.Call.ID, input, b.Call.Name))
			case BlockToolResult:
				content = append(content, anthropic.NewToolResultBlock(b.ToolUseID, b.Result, b.IsError))
			default:
				return nil, fmt.Errorf("unknown block kind %q", b.Kind)
			}
		}
		if msg.Role == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertTools(specs []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(spec.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", spec.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", spec.Name)
		}
		param.OfTool.Description = anthropic.String(spec.Description)
		result = append(result, param)
	}
	return result, nil
}

type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]

	current   Event
	err       error
	toolCall  *ToolCall
	toolInput strings.Builder
}

func (s *anthropicStream) Next() bool {
	if s.err != nil {
		return false
	}
	for s.stream.Next() {
		event := s.stream.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				s.toolCall = &ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				s.toolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					s.current = Event{Kind: EventText, Text: delta.Text}
					return true
				}
			case "input_json_delta":
				s.toolInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if s.toolCall == nil {
				continue
			}
			call := *s.toolCall
			s.toolCall = nil
			call.Input = map[string]any{}
			if raw := strings.TrimSpace(s.toolInput.String()); raw != "" {
				if err := json.Unmarshal([]byte(raw), &call.Input); err != nil {
					s.err = fmt.Errorf("invalid input for tool %s: %w", call.Name, err)
					return false
				}
			}
			s.current = Event{Kind: EventToolUse, Call: call}
			return true

		case "message_stop":
			return false
		}
	}
	if err := s.stream.Err(); err != nil {
		s.err = classify(err)
	}
	return false
}

func (s *anthropicStream) Event() Event { return s.current }

func (s *anthropicStream) Err() error { return s.err }

func (s *anthropicStream) Close() error { return s.stream.Close() }

// classify wraps err with the matching sentinel so callers can use
// errors.Is without knowing the SDK.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
