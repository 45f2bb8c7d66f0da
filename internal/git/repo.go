package git

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"

	"taskpilot/internal/diff"
	"taskpilot/internal/sandbox"
)

const (
	// AutoSavePrefix marks commits made automatically before an agent dispatch.
	AutoSavePrefix = "[auto] "

	initialMessage      = "Initial save point"
	defaultHistoryLimit = 50
	fallbackUserName    = "taskpilot"
	fallbackUserEmail   = "taskpilot@localhost"
)

var (
	// ErrRevertConflict means the revert was aborted because it conflicted.
	ErrRevertConflict = errors.New("REVERT_CONFLICT")
	// ErrUncommittedChanges means a restore was refused to protect unsaved work.
	ErrUncommittedChanges = errors.New("UNCOMMITTED_CHANGES")
	// ErrNotRepository is returned when the folder has no repository.
	ErrNotRepository = errors.New("not a git repository")
)

// Repo is the save-point accessor for one project folder. The underlying
// repository is opened on every call so Init can run on a plain folder.
type Repo struct {
	path   string
	logger *slog.Logger
}

// Status lists changed paths relative to the repository root.
type Status struct {
	Modified  []string `json:"modified"`
	Added     []string `json:"added"`
	Deleted   []string `json:"deleted"`
	Untracked []string `json:"untracked"`
}

// IsClean reports whether no path changed.
func (s *Status) IsClean() bool {
	return len(s.Modified)+len(s.Added)+len(s.Deleted)+len(s.Untracked) == 0
}

// SavePoint is one commit in the history list.
type SavePoint struct {
	Hash         string `json:"hash"`
	Message      string `json:"message"`
	Date         string `json:"date"`
	FilesChanged int    `json:"filesChanged"`
	Insertions   int    `json:"insertions"`
	Deletions    int    `json:"deletions"`
	IsAutoSave   bool   `json:"isAutoSave"`
}

// FileChange is one file's entry in a save point breakdown.
type FileChange struct {
	Path       string `json:"path"`
	Status     string `json:"status"` // M, A, D or R
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// SavePointDetail describes every file touched by a commit.
type SavePointDetail struct {
	SavePoint
	Files []FileChange `json:"files"`
}

// FileDiff holds the full text of one file before and after a commit.
type FileDiff struct {
	Path   string      `json:"path"`
	Before string      `json:"before"`
	After  string      `json:"after"`
	Hunks  []diff.Hunk `json:"hunks"`
}

// New returns an accessor for path without touching the filesystem.
func New(path string, logger *slog.Logger) *Repo {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Repo{path: path, logger: logger.With("component", "git")}
}

// Open returns an accessor for an existing repository.
func Open(path string) (*Repo, error) {
	if _, err := git.PlainOpen(path); err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}
	return New(path, nil), nil
}

// Path returns the working tree root.
func (r *Repo) Path() string {
	return r.path
}

func (r *Repo) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(r.path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNotRepository
		}
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}
	return repo, nil
}

// IsRepo reports whether the folder is a repository root.
func (r *Repo) IsRepo() bool {
	_, err := git.PlainOpen(r.path)
	return err == nil
}

// Init creates the repository and records everything in an initial commit,
// which may be empty.
func (r *Repo) Init() error {
	if _, err := r.RunGitCommand("init"); err != nil {
		return err
	}
	if _, err := r.RunGitCommand("add", "-A"); err != nil {
		return err
	}
	_, err := r.runGit(r.commitEnv(), "commit", "--allow-empty", "-m", initialMessage)
	return err
}

// Status returns the working tree changes as the git CLI sees them, so
// global and system excludes apply exactly as they do for save points.
func (r *Repo) Status() (*Status, error) {
	if !r.IsRepo() {
		return nil, ErrNotRepository
	}
	out, err := r.runGitRaw(nil, "--no-optional-locks", "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return parsePorcelain(out), nil
}

// parsePorcelain reads `git status --porcelain=v1 -z` output. Entries are
// "XY path", and renames and copies carry the original path as an extra
// field.
func parsePorcelain(out string) *Status {
	result := &Status{
		Modified:  []string{},
		Added:     []string{},
		Deleted:   []string{},
		Untracked: []string{},
	}
	fields := strings.Split(out, "\x00")
	for i := 0; i < len(fields); i++ {
		entry := fields[i]
		if len(entry) < 4 {
			continue
		}
		x, y, path := entry[0], entry[1], entry[3:]
		switch {
		case x == '?' && y == '?':
			result.Untracked = append(result.Untracked, path)
		case x == 'R' || x == 'C':
			i++ // original path
			result.Added = append(result.Added, path)
		case x == 'A':
			result.Added = append(result.Added, path)
		case x == 'D' || y == 'D':
			result.Deleted = append(result.Deleted, path)
		default:
			result.Modified = append(result.Modified, path)
		}
	}
	for _, list := range [][]string{result.Modified, result.Added, result.Deleted, result.Untracked} {
		sort.Strings(list)
	}
	return result
}

// HasUncommittedChanges reports whether the working tree is dirty.
func (r *Repo) HasUncommittedChanges() (bool, error) {
	status, err := r.Status()
	if err != nil {
		return false, err
	}
	return !status.IsClean(), nil
}

// CreateSavePoint stages everything and commits it. An empty hash with a nil
// error means there was nothing to commit.
func (r *Repo) CreateSavePoint(message string) (string, error) {
	if !r.IsRepo() {
		return "", ErrNotRepository
	}
	if _, err := r.RunGitCommand("add", "-A"); err != nil {
		return "", err
	}
	staged, err := r.RunGitCommand("diff", "--cached", "--name-only")
	if err != nil {
		return "", err
	}
	if staged == "" {
		return "", nil
	}
	if _, err := r.runGit(r.commitEnv(), "commit", "-m", message); err != nil {
		return "", err
	}
	return r.RunGitCommand("rev-parse", "HEAD")
}

// AutoSaveBeforeAgent commits pending work under an automatic save point
// so a dispatched agent's edits can always be undone.
func (r *Repo) AutoSaveBeforeAgent(label string) (bool, error) {
	dirty, err := r.HasUncommittedChanges()
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}
	hash, err := r.CreateSavePoint(AutoSavePrefix + "Before sending: " + label)
	if err != nil {
		return false, err
	}
	if hash == "" {
		r.logger.Warn("working tree reported dirty but nothing was staged", "label", label)
		return false, nil
	}
	return true, nil
}

// History returns up to limit save points, newest first. Failures are
// logged and produce an empty list.
func (r *Repo) History(limit int) []SavePoint {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	points := []SavePoint{}

	repo, err := r.open()
	if err != nil {
		r.logger.Debug("history unavailable", "path", r.path, "error", err)
		return points
	}
	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		r.logger.Debug("history unavailable", "path", r.path, "error", err)
		return points
	}
	defer iter.Close()

	for len(points) < limit {
		c, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Warn("history iteration failed", "path", r.path, "error", err)
			break
		}
		point := newSavePoint(c)
		if stats, err := c.Stats(); err == nil {
			point.FilesChanged = len(stats)
			for _, s := range stats {
				point.Insertions += s.Addition
				point.Deletions += s.Deletion
			}
		} else {
			r.logger.Warn("commit stats failed", "hash", c.Hash.String(), "error", err)
		}
		points = append(points, point)
	}
	return points
}

func newSavePoint(c *object.Commit) SavePoint {
	message := strings.TrimSpace(c.Message)
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = strings.TrimSpace(message[:i])
	}
	return SavePoint{
		Hash:       c.Hash.String(),
		Message:    message,
		Date:       c.Author.When.Format(time.RFC3339),
		IsAutoSave: strings.HasPrefix(message, AutoSavePrefix),
	}
}

// SavePointDetail returns the per-file breakdown of one commit. The root
// commit is compared against the empty tree.
func (r *Repo) SavePointDetail(hash string) (*SavePointDetail, error) {
	c, err := r.commit(hash)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}
	parentTree := &object.Tree{}
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("failed to read parent: %w", err)
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, fmt.Errorf("failed to read parent tree: %w", err)
		}
	}
	patch, err := parentTree.Patch(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff commit: %w", err)
	}

	detail := &SavePointDetail{SavePoint: newSavePoint(c), Files: []FileChange{}}
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		var change FileChange
		switch {
		case from == nil && to == nil:
			continue
		case from == nil:
			change = FileChange{Path: to.Path(), Status: "A"}
		case to == nil:
			change = FileChange{Path: from.Path(), Status: "D"}
		case from.Path() != to.Path():
			change = FileChange{Path: to.Path(), Status: "R"}
		default:
			change = FileChange{Path: to.Path(), Status: "M"}
		}
		for _, chunk := range fp.Chunks() {
			switch chunk.Type() {
			case fdiff.Add:
				change.Insertions += countLines(chunk.Content())
			case fdiff.Delete:
				change.Deletions += countLines(chunk.Content())
			}
		}
		detail.Files = append(detail.Files, change)
		detail.Insertions += change.Insertions
		detail.Deletions += change.Deletions
	}
	detail.FilesChanged = len(detail.Files)
	sort.Slice(detail.Files, func(i, j int) bool { return detail.Files[i].Path < detail.Files[j].Path })
	return detail, nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// FileDiff returns a file's content before and after a commit. A side where
// the file does not exist is an empty string.
func (r *Repo) FileDiff(hash, path string) (*FileDiff, error) {
	c, err := r.commit(hash)
	if err != nil {
		return nil, err
	}
	after, err := fileContent(c, path)
	if err != nil {
		return nil, err
	}
	before := ""
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("failed to read parent: %w", err)
		}
		if before, err = fileContent(parent, path); err != nil {
			return nil, err
		}
	}
	return &FileDiff{
		Path:   path,
		Before: before,
		After:  after,
		Hunks:  diff.TextDiff(before, after),
	}, nil
}

func fileContent(c *object.Commit, path string) (string, error) {
	f, err := c.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return f.Contents()
}

// Revert records a new commit undoing hash. On conflict the revert is
// aborted and ErrRevertConflict returned.
func (r *Repo) Revert(hash string) error {
	full, err := r.resolve(hash)
	if err != nil {
		return err
	}
	_, runErr := r.runGit(r.commitEnv(), "revert", "--no-edit", full)
	if runErr == nil {
		return nil
	}
	if _, err := r.RunGitCommand("rev-parse", "-q", "--verify", "REVERT_HEAD"); err == nil {
		if _, abortErr := r.RunGitCommand("revert", "--abort"); abortErr != nil {
			r.logger.Error("revert abort failed", "hash", full, "error", abortErr)
		}
		return fmt.Errorf("%w: reverting %s conflicts with later changes", ErrRevertConflict, shortHash(full))
	}
	return runErr
}

// Restore hard-resets the working tree to hash. It refuses when there are
// uncommitted changes.
func (r *Repo) Restore(hash string) error {
	full, err := r.resolve(hash)
	if err != nil {
		return err
	}
	dirty, err := r.HasUncommittedChanges()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("%w: create a save point or discard changes before restoring", ErrUncommittedChanges)
	}
	_, err = r.RunGitCommand("reset", "--hard", full)
	return err
}

// resolve expands an abbreviated hash to the full commit id.
func (r *Repo) resolve(hash string) (string, error) {
	if err := sandbox.ValidateHash(hash); err != nil {
		return "", err
	}
	if !r.IsRepo() {
		return "", ErrNotRepository
	}
	full, err := r.RunGitCommand("rev-parse", "--verify", "--quiet", hash+"^{commit}")
	if err != nil || full == "" {
		return "", fmt.Errorf("save point %s not found", hash)
	}
	return full, nil
}

func (r *Repo) commit(hash string) (*object.Commit, error) {
	full, err := r.resolve(hash)
	if err != nil {
		return nil, err
	}
	repo, err := r.open()
	if err != nil {
		return nil, err
	}
	c, err := repo.CommitObject(plumbing.NewHash(full))
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", shortHash(full), err)
	}
	return c, nil
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

// CurrentBranch returns the name of the current branch
// Uses git command instead of go-git because go-git doesn't handle worktrees correctly
func (r *Repo) CurrentBranch() (string, error) {
	branch, err := r.RunGitCommand("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	if branch == "HEAD" {
		return "", fmt.Errorf("HEAD is detached")
	}
	return branch, nil
}

// commitEnv supplies a fallback identity when none is configured, so save
// points work on machines where git was never set up.
func (r *Repo) commitEnv() []string {
	var env []string
	if name, err := r.RunGitCommand("config", "user.name"); err != nil || name == "" {
		env = append(env, "GIT_AUTHOR_NAME="+fallbackUserName, "GIT_COMMITTER_NAME="+fallbackUserName)
	}
	if email, err := r.RunGitCommand("config", "user.email"); err != nil || email == "" {
		env = append(env, "GIT_AUTHOR_EMAIL="+fallbackUserEmail, "GIT_COMMITTER_EMAIL="+fallbackUserEmail)
	}
	return env
}

// RunGitCommand executes a git command and returns the output
func (r *Repo) RunGitCommand(args ...string) (string, error) {
	return r.runGit(nil, args...)
}

func (r *Repo) runGit(extraEnv []string, args ...string) (string, error) {
	out, err := r.runGitRaw(extraEnv, args...)
	return strings.TrimSpace(out), err
}

// runGitRaw returns stdout untouched; porcelain output is whitespace
// sensitive.
func (r *Repo) runGitRaw(extraEnv []string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.path
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git command failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
