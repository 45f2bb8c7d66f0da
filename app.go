package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskpilot/internal/agent"
	"taskpilot/internal/config"
	"taskpilot/internal/database"
	"taskpilot/internal/eventhub"
	"taskpilot/internal/git"
	"taskpilot/internal/llm"
	"taskpilot/internal/observability"
	"taskpilot/internal/provider"
	"taskpilot/internal/pty"
	"taskpilot/internal/secrets"
	"taskpilot/internal/tasks"
	"taskpilot/internal/tools"
	"taskpilot/internal/transcript"
	"taskpilot/internal/watcher"
)

const lastFolderSetting = "last_project_folder"

// App holds the host state shared by every front end. Exported methods are
// callable over the WebSocket RPC.
type App struct {
	ctx    context.Context
	cfg    *config.Config
	logger *slog.Logger

	db              *database.Database
	credentials     *secrets.Credentials
	eventHub        *eventhub.EventHub
	promRegistry    *prometheus.Registry
	metrics         *observability.Metrics
	tracer          *observability.Tracer
	shutdownTracing func(context.Context) error
	ptyManager      *pty.Manager
	locator         *provider.Locator
	transcripts     *transcript.Store
	session         *agent.Session
	gitWatcher      *git.Watcher

	mu          sync.RWMutex
	folder      string
	registry    *tools.Registry
	fileWatcher *watcher.Watcher
}

// NewApp creates an App that has not been started yet.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &App{cfg: cfg, logger: logger}
}

// startup opens the stores and builds the managers. A remembered project
// folder is reopened when it still exists.
func (a *App) startup(ctx context.Context) error {
	a.ctx = ctx

	db, err := database.Open(a.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db

	box, err := secrets.LoadOrCreateBox(a.cfg.SecretKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load secret key: %w", err)
	}
	a.credentials = secrets.NewCredentials(db, box, func(err error) bool {
		return errors.Is(err, database.ErrNotFound)
	})

	a.eventHub = eventhub.New(ctx)

	a.promRegistry = prometheus.NewRegistry()
	a.promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(a.promRegistry)
	a.tracer, a.shutdownTracing = observability.SetupTracing(observability.TracingConfig{
		ServiceName:    "taskpilot",
		ServiceVersion: version,
		SamplingRate:   1,
		Logger:         a.logger.With("component", "tracing"),
	})

	a.ptyManager = pty.NewManager(ctx, a.eventHub, a.logger, a.metrics)
	a.locator = provider.DefaultLocator(a.logger)

	if a.transcripts, err = transcript.NewStore(a.cfg.TranscriptsDir); err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}

	opts := []agent.Option{
		agent.WithConfig(agent.Config{
			Model:     a.cfg.Agent.Model,
			MaxTokens: a.cfg.Agent.MaxTokens,
			MaxTurns:  a.cfg.Agent.MaxTurns,
		}),
		agent.WithLogger(a.logger),
		agent.WithMetrics(a.metrics),
		agent.WithTracer(a.tracer),
		agent.WithArchiver(a.transcripts),
	}
	baseURL := a.cfg.Agent.BaseURL
	a.session = agent.NewSession(func(apiKey string) llm.Transport {
		return llm.NewAnthropic(llm.AnthropicConfig{APIKey: apiKey, BaseURL: baseURL})
	}, opts...)

	a.gitWatcher = git.NewWatcher(a.eventHub, a.logger)

	a.restoreCredentials()
	a.restoreFolder()

	a.logger.Info("taskpilot started", "app_dir", a.cfg.AppDir)
	return nil
}

// restoreCredentials prefers the environment over the sealed store.
func (a *App) restoreCredentials() {
	key := a.cfg.APIKey
	if key == "" {
		stored, err := a.credentials.LoadAPIKey()
		if err != nil {
			a.logger.Warn("failed to load stored api key", "error", err)
		}
		key = stored
	}
	if key != "" {
		a.session.SetCredentials(key)
	}
}

func (a *App) restoreFolder() {
	folder, err := a.db.GetSetting(lastFolderSetting)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			a.logger.Warn("failed to read last project folder", "error", err)
		}
		return
	}
	if err := a.openFolder(folder); err != nil {
		a.logger.Warn("failed to reopen last project folder", "folder", folder, "error", err)
	}
}

// shutdown stops turns, terminals and watchers and closes the stores.
func (a *App) shutdown(ctx context.Context) {
	if a.session != nil {
		a.session.Cancel()
	}

	a.mu.Lock()
	if a.fileWatcher != nil {
		a.fileWatcher.Close()
		a.fileWatcher = nil
	}
	a.mu.Unlock()

	if a.gitWatcher != nil {
		a.gitWatcher.Close()
	}
	if a.ptyManager != nil {
		a.ptyManager.CloseAll()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	a.logger.Info("taskpilot shutdown complete")
}

// setBroadcaster routes hub events to a front end transport.
func (a *App) setBroadcaster(b eventhub.Broadcaster) {
	if a.eventHub != nil {
		a.eventHub.SetBroadcaster(b)
	}
}

func (a *App) metricsHandler() http.Handler {
	return promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{Registry: a.promRegistry})
}

// openFolder makes root the active project: it rebuilds the tool
// workspace, points the session at it and restarts the watchers.
func (a *App) openFolder(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve folder: %w", err)
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return fmt.Errorf("failed to resolve folder: %w", err)
	}

	ws := tools.NewWorkspace(abs, tasks.NewStore(abs, a.logger), git.New(abs, a.logger))
	ws.Terminals = terminalSpawner{a.ptyManager}
	ws.Dispatches = database.NewDispatchLog(a.db, abs)
	ws.Agents = a.locator
	registry := tools.New(ws, hubNotifier{a.eventHub},
		tools.WithLogger(a.logger),
		tools.WithMetrics(a.metrics),
		tools.WithTracer(a.tracer),
	)

	fw, err := watcher.New(abs, 300*time.Millisecond, a.filesChanged(abs),
		watcher.WithRecursive(),
		watcher.WithIgnore(watcher.DefaultIgnore...),
		watcher.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to watch folder: %w", err)
	}
	if err := fw.Start(); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch folder: %w", err)
	}

	a.mu.Lock()
	previous, oldWatcher := a.folder, a.fileWatcher
	a.folder, a.registry, a.fileWatcher = abs, registry, fw
	a.mu.Unlock()

	if oldWatcher != nil {
		oldWatcher.Close()
	}
	if previous != "" && previous != abs {
		a.gitWatcher.Unwatch(previous)
	}
	if ws.Repo.IsRepo() {
		if err := a.gitWatcher.Watch(abs); err != nil {
			a.logger.Warn("failed to watch repository", "folder", abs, "error", err)
		}
	}

	a.session.SetWorkspace(abs, registry)

	if err := a.db.SaveSetting(lastFolderSetting, abs); err != nil {
		a.logger.Warn("failed to remember project folder", "error", err)
	}
	if err := a.db.TouchProject(abs); err != nil {
		a.logger.Warn("failed to record project", "error", err)
	}
	a.logger.Info("project folder opened", "folder", abs)
	return nil
}

func (a *App) filesChanged(root string) func(watcher.Event) {
	return func(ev watcher.Event) {
		rel, err := filepath.Rel(root, ev.Path)
		if err != nil {
			rel = ev.Path
		}
		a.eventHub.EmitFilesChanged(eventhub.FilesChangedEvent{
			Root:  root,
			Paths: []string{filepath.ToSlash(rel)},
		})
	}
}

// workspace returns the active registry and its workspace.
func (a *App) workspace() (*tools.Registry, *tools.Workspace, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.registry == nil {
		return nil, nil, errNoFolder
	}
	return a.registry, a.registry.Workspace(), nil
}

var errNoFolder = errors.New("no project folder selected")

// hubNotifier forwards tool side-channel events to the hub.
type hubNotifier struct {
	hub *eventhub.EventHub
}

func (n hubNotifier) NotifyToolUse(tool string, input map[string]any) {
	n.hub.EmitAgentToolUse(tool, input)
}

func (n hubNotifier) NotifyStateChanged(domain string, data any) {
	n.hub.EmitAgentStateChanged(domain, data)
}

// terminalSpawner lets tools open terminals through the PTY manager.
type terminalSpawner struct {
	manager *pty.Manager
}

func (s terminalSpawner) Spawn(ctx context.Context, req tools.TerminalRequest) (string, error) {
	return s.manager.Spawn(ctx, req.Name, req.Command, req.Cwd)
}
