package git

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"taskpilot/internal/eventhub"
	"taskpilot/internal/watcher"
)

// EventEmitter receives repository change notifications.
type EventEmitter interface {
	EmitGitChanged(event eventhub.GitChangedEvent)
}

// Watcher reports save-point and working tree changes for project folders
// by watching their .git directories.
type Watcher struct {
	watchers map[string]*watcher.Watcher
	emitter  EventEmitter
	logger   *slog.Logger
	debounce time.Duration
	mu       sync.Mutex
}

func NewWatcher(emitter EventEmitter, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		watchers: make(map[string]*watcher.Watcher),
		emitter:  emitter,
		logger:   logger.With("component", "git-watcher"),
		debounce: 300 * time.Millisecond,
	}
}

// Watch starts watching path and immediately publishes its current state.
// Watching the same path twice is a no-op.
func (g *Watcher) Watch(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.watchers[path]; exists {
		return nil
	}

	w, err := watcher.New(filepath.Join(path, ".git"), g.debounce, func(watcher.Event) {
		g.publish(path)
	}, watcher.WithLogger(g.logger))
	if err != nil {
		return fmt.Errorf("failed to watch git dir: %w", err)
	}
	if err := w.Start(); err != nil {
		w.Close()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	g.watchers[path] = w

	go g.publish(path)
	return nil
}

func (g *Watcher) Unwatch(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if w, exists := g.watchers[path]; exists {
		w.Close()
		delete(g.watchers, path)
	}
}

func (g *Watcher) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, w := range g.watchers {
		w.Close()
	}
	g.watchers = make(map[string]*watcher.Watcher)
}

func (g *Watcher) publish(path string) {
	if g.emitter != nil {
		g.emitter.EmitGitChanged(Snapshot(New(path, g.logger)))
	}
}

// Snapshot summarizes the branch and working tree state of repo.
func Snapshot(repo *Repo) eventhub.GitChangedEvent {
	event := eventhub.GitChangedEvent{
		Path:   repo.Path(),
		Status: make(map[string]string),
	}
	if branch, err := repo.CurrentBranch(); err == nil {
		event.Branch = branch
	}
	status, err := repo.Status()
	if err != nil {
		repo.logger.Debug("status unavailable", "path", repo.Path(), "error", err)
		return event
	}
	for code, paths := range map[string][]string{
		"M":  status.Modified,
		"A":  status.Added,
		"D":  status.Deleted,
		"??": status.Untracked,
	} {
		for _, p := range paths {
			event.Status[p] = code
		}
	}
	return event
}
