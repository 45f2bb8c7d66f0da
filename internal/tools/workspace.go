package tools

import (
	"context"
	"time"

	"taskpilot/internal/git"
	"taskpilot/internal/tasks"
)

// Workspace is the project context every handler works against. It is
// rebuilt whenever the project folder changes.
type Workspace struct {
	Root  string
	Board *tasks.Store
	Repo  *git.Repo

	// Optional collaborators; nil disables the matching behavior.
	Terminals  TerminalSpawner
	Dispatches DispatchRecorder
	Agents     AgentLocator
}

// NewWorkspace binds the board store and repository accessor to root.
func NewWorkspace(root string, board *tasks.Store, repo *git.Repo) *Workspace {
	return &Workspace{Root: root, Board: board, Repo: repo}
}

// TerminalRequest describes a terminal to open.
type TerminalRequest struct {
	Name    string
	Command string
	Cwd     string
}

// TerminalSpawner opens terminal sessions and returns their id.
type TerminalSpawner interface {
	Spawn(ctx context.Context, req TerminalRequest) (string, error)
}

// Dispatch records one task sent to an external coding agent.
type Dispatch struct {
	ID         string
	TaskID     string
	Agent      string
	Command    string
	TerminalID string
	AutoSaved  bool
	CreatedAt  time.Time
}

type DispatchRecorder interface {
	RecordDispatch(ctx context.Context, d Dispatch) error
}

// AgentLocator reports whether an external agent CLI is installed.
type AgentLocator interface {
	Installed(agent string) bool
}
