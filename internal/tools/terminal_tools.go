package tools

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"taskpilot/internal/sandbox"
)

const (
	AgentClaudeCode = "claude-code"
	AgentCodex      = "codex"

	defaultTerminalName = "Terminal"
)

// AgentCommand builds the shell command that hands markdown to agent.
func AgentCommand(agent, markdown string) string {
	if agent == AgentCodex {
		return "codex -q " + sandbox.ShellQuote(markdown)
	}
	return "claude -p " + sandbox.ShellQuote(markdown)
}

// AgentTabName is the terminal tab title for a dispatched task.
func AgentTabName(agent, title string) string {
	if agent == AgentCodex {
		return "Codex: " + title
	}
	return "Claude: " + title
}

type terminalEvent struct {
	Name    string `json:"name"`
	Command string `json:"command,omitempty"`
	ID      string `json:"id,omitempty"`
}

func spawnTerminal(ctx context.Context, c *Call) Result {
	name := c.Args.StringOr("name", defaultTerminalName)
	command := c.Args.String("command")

	terminalID, res := spawn(ctx, c, name, command)
	if res != nil {
		return *res
	}
	c.StateChanged(DomainTerminal, terminalEvent{Name: name, Command: command, ID: terminalID})

	data := map[string]any{"name": name, "command": nil}
	if command != "" {
		data["command"] = command
	}
	if terminalID != "" {
		data["terminalId"] = terminalID
	}
	return ok(data)
}

// spawn opens a terminal when a spawner is wired. An empty id with a nil
// result means the UI is expected to open the tab itself.
func spawn(ctx context.Context, c *Call, name, command string) (string, *Result) {
	if c.Workspace == nil || c.Workspace.Terminals == nil {
		return "", nil
	}
	id, err := c.Workspace.Terminals.Spawn(ctx, TerminalRequest{
		Name:    name,
		Command: command,
		Cwd:     c.Workspace.Root,
	})
	if err != nil {
		r := fail("Failed to open terminal: %v", err)
		return "", &r
	}
	return id, nil
}

type dispatchResult struct {
	TaskID     string `json:"taskId"`
	Agent      string `json:"agent"`
	TabName    string `json:"tabName"`
	AutoSaved  bool   `json:"autoSaved"`
	TerminalID string `json:"terminalId,omitempty"`
	Installed  *bool  `json:"installed,omitempty"`
}

func sendToAgent(ctx context.Context, c *Call) Result {
	store, res := requireBoard(c)
	if res != nil {
		return *res
	}
	id, res := taskID(c)
	if res != nil {
		return *res
	}
	agent := c.Args.StringOr("agent", AgentClaudeCode)

	board, err := store.LoadBoard()
	if err != nil {
		return fail("%v", err)
	}
	meta, found := board.Tasks[id]
	if !found {
		return fail("Task %s not found", id)
	}
	markdown, err := store.ReadMarkdown(id)
	if err != nil {
		return fail("%v", err)
	}

	// Snapshot pending work so whatever the agent does can be undone.
	autoSaved := false
	if repo := c.Workspace.Repo; repo != nil && repo.IsRepo() {
		autoSaved, err = repo.AutoSaveBeforeAgent(meta.Title)
		if err != nil {
			return fail("Auto-save before sending failed: %v", err)
		}
		if autoSaved {
			c.StateChanged(DomainHistory, nil)
		}
	}

	command := AgentCommand(agent, markdown)
	tabName := AgentTabName(agent, meta.Title)

	terminalID, res := spawn(ctx, c, tabName, command)
	if res != nil {
		return *res
	}

	if rec := c.Workspace.Dispatches; rec != nil {
		now := time.Now()
		d := Dispatch{
			ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
			TaskID:     id,
			Agent:      agent,
			Command:    command,
			TerminalID: terminalID,
			AutoSaved:  autoSaved,
			CreatedAt:  now,
		}
		if err := rec.RecordDispatch(ctx, d); err != nil {
			c.logger().Warn("failed to record dispatch", "task", id, "error", err)
		}
	}
	c.registry.metrics.RecordDispatch(agent)

	c.StateChanged(DomainTerminal, terminalEvent{Name: tabName, Command: command, ID: terminalID})

	out := dispatchResult{
		TaskID:     id,
		Agent:      agent,
		TabName:    tabName,
		AutoSaved:  autoSaved,
		TerminalID: terminalID,
	}
	if loc := c.Workspace.Agents; loc != nil {
		installed := loc.Installed(agent)
		out.Installed = &installed
	}
	return ok(out)
}
