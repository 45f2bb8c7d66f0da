package pty

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type exitEvent struct {
	id   string
	code int
}

type recordingEmitter struct {
	mu     sync.Mutex
	output map[string]*strings.Builder
	exits  chan exitEvent
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{output: make(map[string]*strings.Builder), exits: make(chan exitEvent, 8)}
}

func (e *recordingEmitter) EmitTerminalOutput(id, data string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.output[id]
	if !ok {
		b = &strings.Builder{}
		e.output[id] = b
	}
	b.WriteString(data)
}

func (e *recordingEmitter) EmitTerminalExit(id string, exitCode int) {
	e.exits <- exitEvent{id: id, code: exitCode}
}

func (e *recordingEmitter) outputOf(id string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.output[id]; ok {
		return b.String()
	}
	return ""
}

func (e *recordingEmitter) waitExit(t *testing.T) exitEvent {
	t.Helper()
	select {
	case ev := <-e.exits:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal exit")
		return exitEvent{}
	}
}

// newTestManager skips when the environment cannot allocate a terminal.
func newTestManager(t *testing.T, emitter Emitter) *Manager {
	t.Helper()
	m := NewManager(context.Background(), emitter, nil, nil)
	check, err := m.CreateSession("check", Options{Cwd: t.TempDir(), Command: "true", Shell: "/bin/sh"})
	if err != nil {
		t.Skipf("pty not available: %v", err)
	}
	m.CloseSession(check.ID)
	t.Cleanup(m.CloseAll)
	return m
}

func TestPtyManager_RunCommand(t *testing.T) {
	emitter := newRecordingEmitter()
	manager := newTestManager(t, emitter)
	emitter.waitExit(t) // availability check

	id, err := manager.Spawn(context.Background(), "Echo", "echo hello-from-pty", t.TempDir())
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated terminal id")
	}

	ev := emitter.waitExit(t)
	if ev.id != id {
		t.Fatalf("exit for %q, want %q", ev.id, id)
	}
	if ev.code != 0 {
		t.Errorf("exit code = %d, want 0", ev.code)
	}
	if out := emitter.outputOf(id); !strings.Contains(out, "hello-from-pty") {
		t.Errorf("output %q does not contain the echoed text", out)
	}
	if _, ok := manager.GetSession(id); ok {
		t.Error("exited session should be forgotten")
	}
}

func TestPtyManager_ExitCode(t *testing.T) {
	emitter := newRecordingEmitter()
	manager := newTestManager(t, emitter)
	emitter.waitExit(t)

	_, err := manager.CreateSession("fails", Options{Cwd: t.TempDir(), Command: "exit 3", Shell: "/bin/sh"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if ev := emitter.waitExit(t); ev.code != 3 {
		t.Errorf("exit code = %d, want 3", ev.code)
	}
}

func TestPtyManager_InteractiveSession(t *testing.T) {
	manager := newTestManager(t, nil)

	session, err := manager.CreateSession("shell", Options{Cwd: t.TempDir(), Shell: "/bin/sh"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Name != "Terminal" {
		t.Errorf("default name = %q", session.Name)
	}
	if session.Rows != DefaultRows || session.Cols != DefaultCols {
		t.Errorf("default size = %dx%d", session.Rows, session.Cols)
	}

	if err := manager.Write("shell", "echo hi\n"); err != nil {
		t.Errorf("Write failed: %v", err)
	}
	if err := manager.Resize("shell", 48, 120); err != nil {
		t.Errorf("Resize failed: %v", err)
	}
	if session.Rows != 48 || session.Cols != 120 {
		t.Errorf("Expected 48x120, got %dx%d", session.Rows, session.Cols)
	}
	if err := manager.Resize("shell", 0, 0); err != nil {
		t.Errorf("zero resize should be ignored: %v", err)
	}
	if session.Rows != 48 {
		t.Errorf("zero resize changed rows to %d", session.Rows)
	}

	if _, err := manager.CreateSession("shell", Options{}); err == nil {
		t.Error("expected duplicate id to be rejected")
	}

	if err := manager.CloseSession("shell"); err != nil {
		t.Errorf("CloseSession failed: %v", err)
	}
	if err := session.Write("echo gone\n"); err == nil {
		t.Error("write after close should fail")
	}
}

func TestPtyManager_UnknownSessionIgnored(t *testing.T) {
	manager := NewManager(context.Background(), nil, nil, nil)
	if err := manager.Write("nope", "x"); err != nil {
		t.Errorf("Write: %v", err)
	}
	if err := manager.Resize("nope", 10, 10); err != nil {
		t.Errorf("Resize: %v", err)
	}
	if err := manager.CloseSession("nope"); err != nil {
		t.Errorf("CloseSession: %v", err)
	}
}

func TestPtyManager_CloseAll(t *testing.T) {
	manager := newTestManager(t, nil)
	dir := t.TempDir()

	for _, id := range []string{"session1", "session2", "session3"} {
		if _, err := manager.CreateSession(id, Options{Cwd: dir, Shell: "/bin/sh"}); err != nil {
			t.Fatalf("CreateSession(%s) failed: %v", id, err)
		}
	}
	if got := len(manager.ListSessions()); got != 3 {
		t.Errorf("Expected 3 sessions, got %d", got)
	}

	manager.CloseAll()

	if got := len(manager.ListSessions()); got != 0 {
		t.Errorf("Expected 0 sessions after CloseAll, got %d", got)
	}
}

func TestBuildShellArgs(t *testing.T) {
	s := NewSession("x", Options{Shell: "/bin/zsh", Command: "npm test"})
	args := s.buildShellArgs()
	if len(args) != 2 || args[0] != "-c" || args[1] != "npm test" {
		t.Errorf("command args = %v", args)
	}

	s = NewSession("y", Options{Shell: "/usr/bin/fish"})
	if args := s.buildShellArgs(); len(args) != 1 || args[0] != "-i" {
		t.Errorf("interactive args = %v", args)
	}
}

func TestGetShellType(t *testing.T) {
	cases := map[string]string{
		"/bin/zsh":            ShellTypeZsh,
		"/usr/local/bin/bash": ShellTypeBash,
		"/usr/bin/fish":       ShellTypeFish,
		"/bin/dash":           ShellTypeSh,
	}
	for path, want := range cases {
		if got := getShellType(path); got != want {
			t.Errorf("getShellType(%q) = %q, want %q", path, got, want)
		}
	}
}
