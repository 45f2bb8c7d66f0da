package main

import (
	"context"

	"taskpilot/internal/agent"
	"taskpilot/internal/database"
	"taskpilot/internal/files"
	"taskpilot/internal/git"
	"taskpilot/internal/llm"
	"taskpilot/internal/provider"
	"taskpilot/internal/pty"
	"taskpilot/internal/tasks"
	"taskpilot/internal/tools"
	"taskpilot/internal/transcript"
)

const (
	defaultHistoryLimit  = 50
	defaultRecentLimit   = 10
	defaultDispatchLimit = 20
)

// ===== Agent =====

// SetApiKey stores the key sealed and hands it to the session. An empty key
// clears it.
func (a *App) SetApiKey(key string) error {
	if err := a.credentials.SaveAPIKey(key); err != nil {
		return err
	}
	a.session.SetCredentials(key)
	return nil
}

func (a *App) HasApiKey() bool {
	return a.session.HasCredentials()
}

// SendMessage starts a turn and returns once it is running. Chunks arrive
// as agent:response events.
func (a *App) SendMessage(message string) error {
	return a.session.SendAsync(a.ctx, message, a.emitChunk)
}

func (a *App) emitChunk(c agent.Chunk) {
	a.eventHub.EmitAgentResponse(c)
}

func (a *App) CancelMessage() {
	a.session.Cancel()
}

func (a *App) IsAgentBusy() bool {
	return a.session.Busy()
}

// ClearConversation archives the current conversation and starts a new one.
func (a *App) ClearConversation() {
	a.session.Clear()
}

func (a *App) ConversationHistory() []llm.Message {
	return a.session.History()
}

// ===== Project folder =====

// SelectFolder opens path as the active project and returns its resolved
// location.
func (a *App) SelectFolder(path string) (string, error) {
	if err := a.openFolder(path); err != nil {
		return "", err
	}
	return a.GetFolder(), nil
}

func (a *App) GetFolder() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.folder
}

func (a *App) RecentProjects(limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return a.db.RecentProjects(limit)
}

// ===== Tasks =====

func (a *App) GetBoard() (*tasks.Board, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return nil, err
	}
	return ws.Board.LoadBoard()
}

// SaveBoard replaces the board, as after a drag and drop in the UI.
func (a *App) SaveBoard(board *tasks.Board) error {
	_, ws, err := a.workspace()
	if err != nil {
		return err
	}
	return ws.Board.SaveBoard(board)
}

func (a *App) ReadTaskMarkdown(id string) (string, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return "", err
	}
	return ws.Board.ReadMarkdown(id)
}

func (a *App) WriteTaskMarkdown(id, content string) error {
	_, ws, err := a.workspace()
	if err != nil {
		return err
	}
	return ws.Board.WriteMarkdown(id, content)
}

// ExecuteTool runs a catalog tool on behalf of the UI with the same
// validation the agent gets.
func (a *App) ExecuteTool(ctx context.Context, name string, input map[string]any) (tools.Result, error) {
	registry, _, err := a.workspace()
	if err != nil {
		return tools.Result{}, err
	}
	return registry.Execute(ctx, name, input), nil
}

// ===== Files =====

func (a *App) ListFiles(dir string) ([]files.Entry, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return nil, err
	}
	return files.List(ws.Root, dir)
}

func (a *App) ReadFile(path string) (string, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return "", err
	}
	return files.Read(ws.Root, path)
}

func (a *App) WriteFile(path, content string) error {
	_, ws, err := a.workspace()
	if err != nil {
		return err
	}
	return files.Write(ws.Root, path, content)
}

func (a *App) DeleteFile(path string) error {
	_, ws, err := a.workspace()
	if err != nil {
		return err
	}
	return files.Delete(ws.Root, path)
}

// ===== Save points =====

func (a *App) GitStatus() (*git.Status, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return nil, err
	}
	return ws.Repo.Status()
}

func (a *App) GitHistory(limit int) ([]git.SavePoint, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return ws.Repo.History(limit), nil
}

func (a *App) SavePointDetail(hash string) (*git.SavePointDetail, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return nil, err
	}
	return ws.Repo.SavePointDetail(hash)
}

func (a *App) SavePointFileDiff(hash, path string) (*git.FileDiff, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return nil, err
	}
	return ws.Repo.FileDiff(hash, path)
}

func (a *App) GitIsRepo() (bool, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return false, err
	}
	return ws.Repo.IsRepo(), nil
}

// GitInit turns the project folder into a repository with an initial save
// point and starts watching it. An existing repository is left alone.
func (a *App) GitInit() error {
	_, ws, err := a.workspace()
	if err != nil {
		return err
	}
	if !ws.Repo.IsRepo() {
		if err := ws.Repo.Init(); err != nil {
			return err
		}
	}
	if err := a.gitWatcher.Watch(ws.Root); err != nil {
		a.logger.Warn("failed to watch repository", "folder", ws.Root, "error", err)
	}
	return nil
}

// CreateSavePoint commits every change. An empty hash means there was
// nothing to save.
func (a *App) CreateSavePoint(message string) (string, error) {
	_, ws, err := a.workspace()
	if err != nil {
		return "", err
	}
	return ws.Repo.CreateSavePoint(message)
}

func (a *App) RestoreSavePoint(hash string) error {
	_, ws, err := a.workspace()
	if err != nil {
		return err
	}
	return ws.Repo.Restore(hash)
}

func (a *App) RevertSavePoint(hash string) error {
	_, ws, err := a.workspace()
	if err != nil {
		return err
	}
	return ws.Repo.Revert(hash)
}

// ===== Terminals =====

// CreateTerminal opens a shell in the project folder, or runs command when
// it is not empty. Output arrives as terminal:output events.
func (a *App) CreateTerminal(name, command string, rows, cols int) (string, error) {
	s, err := a.ptyManager.CreateSession("", pty.Options{
		Name:    name,
		Cwd:     a.GetFolder(),
		Command: command,
		Rows:    rows,
		Cols:    cols,
	})
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

func (a *App) TerminalInput(id, data string) error {
	return a.ptyManager.Write(id, data)
}

func (a *App) ResizeTerminal(id string, rows, cols int) error {
	return a.ptyManager.Resize(id, rows, cols)
}

func (a *App) CloseTerminal(id string) error {
	return a.ptyManager.CloseSession(id)
}

func (a *App) ListTerminals() []string {
	return a.ptyManager.ListSessions()
}

// ===== Dispatches & coding agents =====

// ListDispatches returns recent hand-offs for the active project, filtered
// to taskID when set.
func (a *App) ListDispatches(ctx context.Context, taskID string, limit int) ([]*database.DispatchRecord, error) {
	folder := a.GetFolder()
	if folder == "" {
		return nil, errNoFolder
	}
	if limit <= 0 {
		limit = defaultDispatchLimit
	}
	return a.db.ListDispatches(ctx, folder, taskID, limit)
}

func (a *App) AgentStatus() map[string]*provider.Installation {
	return a.locator.Status()
}

func (a *App) RefreshAgents() map[string]*provider.Installation {
	a.locator.Refresh()
	return a.locator.Status()
}

// ===== Transcripts =====

func (a *App) ListTranscripts() ([]transcript.Transcript, error) {
	folder := a.GetFolder()
	if folder == "" {
		return nil, errNoFolder
	}
	return a.transcripts.List(folder)
}

func (a *App) LoadTranscript(id string) ([]llm.Message, error) {
	_, messages, err := a.transcripts.Load(a.GetFolder(), id)
	return messages, err
}

func (a *App) DeleteTranscript(id string) error {
	return a.transcripts.Delete(a.GetFolder(), id)
}
