// Package pty runs terminals on pseudo terminals and streams their output
// as events.
package pty

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"taskpilot/internal/observability"
)

// Emitter receives terminal output and exit notifications.
type Emitter interface {
	EmitTerminalOutput(id, data string)
	EmitTerminalExit(id string, exitCode int)
}

// Manager manages multiple PTY sessions
type Manager struct {
	ctx      context.Context
	emitter  Emitter
	logger   *slog.Logger
	metrics  *observability.Metrics
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewManager(ctx context.Context, emitter Emitter, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		ctx:      ctx,
		emitter:  emitter,
		logger:   logger.With("component", "pty"),
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}
}

// CreateSession starts a terminal under id. An empty id gets a fresh one.
func (m *Manager) CreateSession(id string, opts Options) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, fmt.Errorf("session already exists: %s", id)
	}

	session := NewSession(id, opts)
	if err := session.Start(); err != nil {
		return nil, fmt.Errorf("failed to start terminal: %w", err)
	}
	m.sessions[id] = session
	m.metrics.TerminalOpened()
	m.logger.Info("terminal started", "id", id, "name", session.Name, "cwd", session.Cwd, "command", session.Command)

	go m.readOutput(session)
	return session, nil
}

// Spawn opens a terminal running command (or an interactive shell) in cwd
// and returns its id.
func (m *Manager) Spawn(_ context.Context, name, command, cwd string) (string, error) {
	s, err := m.CreateSession("", Options{Name: name, Command: command, Cwd: cwd})
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// readOutput forwards output until the process ends, then reports the exit
// code and forgets the session.
func (m *Manager) readOutput(session *Session) {
	buf := make([]byte, 8192)
	for {
		if m.ctx.Err() != nil {
			break
		}
		n, err := session.Read(buf)
		if n > 0 && m.emitter != nil {
			m.emitter.EmitTerminalOutput(session.ID, string(buf[:n]))
		}
		if err != nil {
			break
		}
	}

	code := session.Wait()
	_ = session.Close()

	m.mu.Lock()
	if m.sessions[session.ID] == session {
		delete(m.sessions, session.ID)
	}
	m.mu.Unlock()

	m.metrics.TerminalClosed()
	m.logger.Info("terminal exited", "id", session.ID, "exit_code", code)
	if m.emitter != nil {
		m.emitter.EmitTerminalExit(session.ID, code)
	}
}

// Write sends input to a session. Unknown ids are ignored.
func (m *Manager) Write(sessionID, data string) error {
	m.mu.RLock()
	session, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if !exists {
		return nil
	}
	return session.Write(data)
}

// Resize changes the terminal size for a session. Unknown ids are ignored.
func (m *Manager) Resize(sessionID string, rows, cols int) error {
	m.mu.RLock()
	session, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if !exists {
		return nil
	}
	return session.Resize(rows, cols)
}

// CloseSession kills a session. Unknown ids are ignored.
func (m *Manager) CloseSession(sessionID string) error {
	m.mu.Lock()
	session, exists := m.sessions[sessionID]
	if exists {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !exists {
		return nil
	}
	return session.Close()
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

func (m *Manager) ListSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}
