package provider

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const versionTimeout = 5 * time.Second

// CLIProvider finds an agent by its binary name on PATH and in the usual
// global install locations.
type CLIProvider struct {
	id     string
	name   string
	binary string
	// extraDirs are searched after PATH.
	extraDirs []string
}

func NewClaudeProvider() *CLIProvider {
	return &CLIProvider{id: "claude-code", name: "Claude Code", binary: "claude", extraDirs: defaultDirs()}
}

func NewCodexProvider() *CLIProvider {
	return &CLIProvider{id: "codex", name: "Codex", binary: "codex", extraDirs: defaultDirs()}
}

func (p *CLIProvider) ID() string {
	return p.id
}

func (p *CLIProvider) Name() string {
	return p.name
}

// Binary is the executable name looked up on PATH.
func (p *CLIProvider) Binary() string {
	return p.binary
}

func defaultDirs() []string {
	dirs := []string{"/usr/local/bin", "/opt/homebrew/bin"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, ".npm", "bin"),
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, "node_modules", ".bin"),
		)
	}
	return dirs
}

func (p *CLIProvider) DiscoverInstallations() ([]Installation, error) {
	var installations []Installation
	seen := make(map[string]bool)

	type candidate struct{ path, source string }
	var candidates []candidate
	if path, err := exec.LookPath(p.binary); err == nil {
		candidates = append(candidates, candidate{path, "path"})
	}
	for _, dir := range p.extraDirs {
		candidates = append(candidates, candidate{filepath.Join(dir, p.binary), "discovered"})
	}

	for _, c := range candidates {
		// Skip duplicates (resolve symlinks for comparison)
		resolved, err := filepath.EvalSymlinks(c.path)
		if err != nil {
			resolved = c.path
		}
		if seen[resolved] {
			continue
		}

		info, err := os.Stat(c.path)
		if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
			continue
		}
		seen[resolved] = true
		installations = append(installations, Installation{
			Path:    c.path,
			Version: getVersion(c.path),
			Source:  c.source,
		})
	}

	return installations, nil
}

func getVersion(binaryPath string) string {
	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, binaryPath, "--version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}
