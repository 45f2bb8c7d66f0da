package provider

import (
	"fmt"
	"log/slog"
	"sync"

	"taskpilot/internal/llm"
)

// Locator answers which agents are installed. Results are cached until
// Refresh.
type Locator struct {
	providers map[string]Provider
	order     []string
	logger    *slog.Logger

	mu    sync.Mutex
	found map[string][]Installation
}

func NewLocator(logger *slog.Logger, providers ...Provider) *Locator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Locator{
		providers: make(map[string]Provider),
		logger:    logger.With("component", "provider"),
		found:     make(map[string][]Installation),
	}
	for _, p := range providers {
		l.providers[p.ID()] = p
		l.order = append(l.order, p.ID())
	}
	return l
}

// DefaultLocator knows Claude Code and Codex.
func DefaultLocator(logger *slog.Logger) *Locator {
	return NewLocator(logger, NewClaudeProvider(), NewCodexProvider())
}

// Find returns the preferred installation of agent.
func (l *Locator) Find(agent string) (Installation, error) {
	p, ok := l.providers[agent]
	if !ok {
		return Installation{}, fmt.Errorf("unknown agent: %s", agent)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	found, cached := l.found[agent]
	if !cached {
		var err error
		found, err = p.DiscoverInstallations()
		if err != nil {
			return Installation{}, fmt.Errorf("failed to discover %s: %w", p.Name(), err)
		}
		l.found[agent] = found
		l.logger.Debug("discovered agent installations", "agent", agent, "count", len(found))
	}
	if len(found) == 0 {
		return Installation{}, fmt.Errorf("%s: %w", p.Name(), llm.ErrCLINotFound)
	}
	return found[0], nil
}

// Installed reports whether agent has at least one installation.
func (l *Locator) Installed(agent string) bool {
	_, err := l.Find(agent)
	return err == nil
}

// Status maps every known agent to its installation, nil when missing.
func (l *Locator) Status() map[string]*Installation {
	out := make(map[string]*Installation, len(l.order))
	for _, id := range l.order {
		if inst, err := l.Find(id); err == nil {
			out[id] = &inst
		} else {
			out[id] = nil
		}
	}
	return out
}

// Refresh forgets cached discoveries.
func (l *Locator) Refresh() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.found = make(map[string][]Installation)
}
