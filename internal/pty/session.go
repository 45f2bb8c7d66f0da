package pty

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gopty "github.com/aymanbagabas/go-pty"
)

// Shell type constants
const (
	ShellTypeBash = "bash"
	ShellTypeZsh  = "zsh"
	ShellTypeFish = "fish"
	ShellTypeSh   = "sh"
)

const (
	DefaultRows = 24
	DefaultCols = 80
)

var (
	cachedDefaultShell     string
	cachedDefaultShellOnce sync.Once
)

// Session is one terminal: a shell, or a single command run through the
// shell, attached to a pseudo terminal.
type Session struct {
	ID      string
	Name    string
	Cwd     string
	Shell   string
	Command string
	Rows    int
	Cols    int

	pty     gopty.Pty
	cmd     *gopty.Cmd
	mu      sync.Mutex
	closed  bool
	started bool

	doneCh chan struct{}
}

// Options describes a terminal to open. Zero values pick defaults.
type Options struct {
	Name    string
	Cwd     string
	Command string
	Shell   string
	Rows    int
	Cols    int
}

func NewSession(id string, opts Options) *Session {
	if opts.Shell == "" {
		opts.Shell = getDefaultShell()
	}
	if opts.Rows <= 0 {
		opts.Rows = DefaultRows
	}
	if opts.Cols <= 0 {
		opts.Cols = DefaultCols
	}
	if opts.Cwd == "" {
		opts.Cwd = defaultCwd()
	}
	if opts.Name == "" {
		opts.Name = "Terminal"
	}
	return &Session{
		ID:      id,
		Name:    opts.Name,
		Cwd:     opts.Cwd,
		Shell:   opts.Shell,
		Command: opts.Command,
		Rows:    opts.Rows,
		Cols:    opts.Cols,
		doneCh:  make(chan struct{}),
	}
}

func getShellType(shellPath string) string {
	base := strings.ToLower(filepath.Base(shellPath))
	switch {
	case strings.Contains(base, "zsh"):
		return ShellTypeZsh
	case strings.Contains(base, "bash"):
		return ShellTypeBash
	case strings.Contains(base, "fish"):
		return ShellTypeFish
	default:
		return ShellTypeSh
	}
}

// buildShellArgs runs Command with -c when set, otherwise starts an
// interactive shell without login initialization.
func (s *Session) buildShellArgs() []string {
	if s.Command != "" {
		return []string{"-c", s.Command}
	}
	if getShellType(s.Shell) == ShellTypeBash {
		// --rcfile loads only .bashrc, skipping /etc/profile and friends.
		bashrc := filepath.Join(os.Getenv("HOME"), ".bashrc")
		if _, err := os.Stat(bashrc); err == nil {
			return []string{"--rcfile", bashrc}
		}
	}
	return []string{"-i"}
}

func (s *Session) buildShellEnv() []string {
	return append(os.Environ(), "TERM=xterm-256color")
}

// Start allocates the pseudo terminal and launches the process.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := gopty.New()
	if err != nil {
		return err
	}
	if err := p.Resize(s.Cols, s.Rows); err != nil {
		p.Close()
		return err
	}

	cmd := p.Command(s.Shell, s.buildShellArgs()...)
	cmd.Dir = s.Cwd
	cmd.Env = s.buildShellEnv()
	if err := cmd.Start(); err != nil {
		p.Close()
		return err
	}

	s.pty = p
	s.cmd = cmd
	s.started = true
	return nil
}

// Wait blocks until the process exits and returns its exit code, or -1 when
// it cannot be determined.
func (s *Session) Wait() int {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return -1
	}
	_ = cmd.Wait()
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

func (s *Session) Write(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pty == nil || !s.started {
		return io.ErrClosedPipe
	}
	_, err := s.pty.Write([]byte(data))
	return err
}

func (s *Session) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Session) Read(buf []byte) (int, error) {
	if s.pty == nil {
		return 0, io.EOF
	}
	return s.pty.Read(buf)
}

// Resize ignores non-positive dimensions.
func (s *Session) Resize(rows, cols int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pty == nil || rows <= 0 || cols <= 0 {
		return nil
	}
	s.Rows = rows
	s.Cols = cols
	return s.pty.Resize(cols, rows)
}

// Close kills the process and releases the pseudo terminal.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.doneCh)

	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.pty != nil {
		return s.pty.Close()
	}
	return nil
}

// Done is closed once Close has been called.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

func defaultCwd() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "/"
}

func detectDefaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}

	shells := []string{
		"/bin/zsh",
		"/usr/bin/zsh",
		"/opt/homebrew/bin/zsh",
		"/bin/bash",
		"/usr/bin/bash",
		"/bin/sh",
		"/usr/bin/sh",
	}
	for _, shell := range shells {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh"
}

// getDefaultShell caches the lookup across terminals.
func getDefaultShell() string {
	cachedDefaultShellOnce.Do(func() {
		cachedDefaultShell = detectDefaultShell()
	})
	return cachedDefaultShell
}
