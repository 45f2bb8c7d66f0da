// Package eventhub fans host events out to connected front ends.
package eventhub

import (
	"context"
)

// Event names pushed to subscribers.
const (
	AgentResponse     = "agent:response"
	AgentToolUse      = "agent:toolUse"
	AgentStateChanged = "agent:stateChanged"
	TerminalOutput    = "terminal:output"
	TerminalExit      = "terminal:exit"
	FilesChanged      = "files:changed"
	GitChanged        = "git:changed"
)

// Broadcaster delivers one event to every subscriber.
type Broadcaster interface {
	BroadcastEvent(eventType string, payload interface{})
}

// EventHub is the single place events leave the host.
type EventHub struct {
	ctx         context.Context
	broadcaster Broadcaster
}

func New(ctx context.Context) *EventHub {
	return &EventHub{ctx: ctx}
}

// SetBroadcaster sets the WebSocket broadcaster.
func (h *EventHub) SetBroadcaster(b Broadcaster) {
	h.broadcaster = b
}

func (h *EventHub) emit(eventName string, payload interface{}) {
	if h.ctx != nil && h.ctx.Err() != nil {
		return
	}
	if h.broadcaster != nil {
		h.broadcaster.BroadcastEvent(eventName, payload)
	}
}

// Emit sends an arbitrary event.
func (h *EventHub) Emit(eventName string, payload interface{}) {
	h.emit(eventName, payload)
}

// EmitAgentResponse forwards one stream chunk.
func (h *EventHub) EmitAgentResponse(chunk interface{}) {
	h.emit(AgentResponse, chunk)
}

type ToolUseEvent struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

func (h *EventHub) EmitAgentToolUse(tool string, input map[string]any) {
	h.emit(AgentToolUse, ToolUseEvent{Tool: tool, Input: input})
}

// StateChangedEvent tells a front end which domain to refetch.
type StateChangedEvent struct {
	Domain string `json:"domain"` // tasks, files, history or terminal
	Data   any    `json:"data,omitempty"`
}

func (h *EventHub) EmitAgentStateChanged(domain string, data any) {
	h.emit(AgentStateChanged, StateChangedEvent{Domain: domain, Data: data})
}

type TerminalOutputEvent struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

func (h *EventHub) EmitTerminalOutput(id, data string) {
	h.emit(TerminalOutput, TerminalOutputEvent{ID: id, Data: data})
}

type TerminalExitEvent struct {
	ID       string `json:"id"`
	ExitCode int    `json:"exitCode"`
}

func (h *EventHub) EmitTerminalExit(id string, exitCode int) {
	h.emit(TerminalExit, TerminalExitEvent{ID: id, ExitCode: exitCode})
}

type FilesChangedEvent struct {
	Root  string   `json:"root"`
	Paths []string `json:"paths"`
}

func (h *EventHub) EmitFilesChanged(event FilesChangedEvent) {
	h.emit(FilesChanged, event)
}

type GitChangedEvent struct {
	Path   string            `json:"path"`
	Branch string            `json:"branch"`
	Status map[string]string `json:"status"` // path -> porcelain status
}

func (h *EventHub) EmitGitChanged(event GitChangedEvent) {
	h.emit(GitChanged, event)
}
