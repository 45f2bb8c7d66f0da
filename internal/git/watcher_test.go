package git

import (
	"sync"
	"testing"
	"time"

	"taskpilot/internal/eventhub"
)

type gitEvents struct {
	mu     sync.Mutex
	events []eventhub.GitChangedEvent
}

func (g *gitEvents) EmitGitChanged(event eventhub.GitChangedEvent) {
	g.mu.Lock()
	g.events = append(g.events, event)
	g.mu.Unlock()
}

func (g *gitEvents) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.events)
}

func TestSnapshot(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "a")
	writeFile(t, repoPath, "a.txt", "changed")
	writeFile(t, repoPath, "new.txt", "new")

	event := Snapshot(New(repoPath, nil))
	if event.Branch == "" {
		t.Error("expected branch name")
	}
	if event.Status["a.txt"] != "M" || event.Status["new.txt"] != "??" {
		t.Errorf("status = %v", event.Status)
	}
}

func TestWatcherPublishes(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "a")

	emitter := &gitEvents{}
	w := NewWatcher(emitter, nil)
	w.debounce = 20 * time.Millisecond
	defer w.Close()

	if err := w.Watch(repoPath); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if err := w.Watch(repoPath); err != nil {
		t.Fatalf("second Watch failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for emitter.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if emitter.count() == 0 {
		t.Fatal("expected initial snapshot")
	}

	initial := emitter.count()
	commitFile(t, repoPath, "b.txt", "b")
	deadline = time.Now().Add(2 * time.Second)
	for emitter.count() == initial && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if emitter.count() == initial {
		t.Error("expected event after commit")
	}

	w.Unwatch(repoPath)
}

func TestWatcherNotRepository(t *testing.T) {
	w := NewWatcher(nil, nil)
	defer w.Close()
	if err := w.Watch(t.TempDir()); err == nil {
		t.Error("watching a folder without .git should fail")
	}
}
