// Package tasks persists the kanban board and per-task markdown under a
// project's tasks/ directory.
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"taskpilot/internal/sandbox"
)

const (
	dirName       = "tasks"
	boardFileName = "board.json"
	idLength      = 8
)

const boardSchemaJSON = `{
  "type": "object",
  "required": ["columns", "tasks"],
  "properties": {
    "columns": {
      "type": "object",
      "required": ["draft", "planning", "in-progress", "review", "done"],
      "additionalProperties": {"type": "array", "items": {"type": "string"}}
    },
    "tasks": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["title", "createdAt"],
        "properties": {
          "title": {"type": "string"},
          "createdAt": {"type": "string"}
        }
      }
    }
  }
}`

var boardSchema = jsonschema.MustCompileString("board.json", boardSchemaJSON)

// ErrInvalidBoard is returned when a board handed to SaveBoard breaks the
// board invariants.
var ErrInvalidBoard = errors.New("invalid board")

// Store reads and writes the board for a single project folder.
type Store struct {
	root   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a store rooted at the project folder. Nothing is read
// until the first call.
func NewStore(projectRoot string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		root:   projectRoot,
		logger: logger.With("component", "tasks"),
	}
}

// Dir returns the tasks directory.
func (s *Store) Dir() string {
	return filepath.Join(s.root, dirName)
}

// BoardPath returns the board.json location.
func (s *Store) BoardPath() string {
	return filepath.Join(s.Dir(), boardFileName)
}

// LoadBoard reads the board. A missing, unparseable or malformed file yields
// an empty board; only other I/O failures are returned.
func (s *Store) LoadBoard() (*Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// SaveBoard writes the board atomically. Boards that fail the schema,
// reference unknown tasks or list a task twice are rejected.
func (s *Store) SaveBoard(b *Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(b)
}

// Update runs fn against the current board and saves it when fn succeeds.
// The store lock is held for the whole read-modify-write.
func (s *Store) Update(fn func(*Board) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(b); err != nil {
		return err
	}
	return s.saveLocked(b)
}

func (s *Store) loadLocked() (*Board, error) {
	path := s.BoardPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewBoard(), nil
		}
		return nil, fmt.Errorf("read board: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("board file is not valid JSON, using empty board", "path", path, "error", err)
		return NewBoard(), nil
	}
	if err := boardSchema.Validate(raw); err != nil {
		s.logger.Warn("board file failed validation, using empty board", "path", path, "error", err)
		return NewBoard(), nil
	}

	var b Board
	if err := json.Unmarshal(data, &b); err != nil {
		s.logger.Warn("board file could not be decoded, using empty board", "path", path, "error", err)
		return NewBoard(), nil
	}
	normalize(&b)
	if dropped := repair(&b); len(dropped) > 0 {
		s.logger.Warn("board file had stray column entries, dropped them", "path", path, "ids", dropped)
	}
	return &b, nil
}

// normalize drops unknown columns and fills in nil maps and slices.
func normalize(b *Board) {
	cols := make(map[ColumnID][]string, len(Columns))
	for _, c := range Columns {
		ids := b.Columns[c]
		if ids == nil {
			ids = []string{}
		}
		cols[c] = ids
	}
	b.Columns = cols
	if b.Tasks == nil {
		b.Tasks = make(map[string]TaskMeta)
	}
}

// repair removes column entries without a task record and repeated
// occurrences of an id, keeping the first. It returns the removed ids.
func repair(b *Board) []string {
	var dropped []string
	seen := make(map[string]bool)
	for _, c := range Columns {
		kept := b.Columns[c][:0]
		for _, id := range b.Columns[c] {
			if seen[id] || !b.Has(id) {
				dropped = append(dropped, id)
				continue
			}
			seen[id] = true
			kept = append(kept, id)
		}
		b.Columns[c] = kept
	}
	return dropped
}

// validate checks b against the board schema and the column invariants:
// every listed id has a task record, appears in one column once, and is a
// valid task id.
func validate(b *Board) error {
	if b == nil {
		return fmt.Errorf("%w: board is missing", ErrInvalidBoard)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal board: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("marshal board: %w", err)
	}
	if err := boardSchema.Validate(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBoard, err)
	}
	for c := range b.Columns {
		if !ValidColumn(string(c)) {
			return fmt.Errorf("%w: unknown column %q", ErrInvalidBoard, c)
		}
	}
	for id := range b.Tasks {
		if err := sandbox.ValidateTaskID(id); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBoard, err)
		}
	}
	seen := make(map[string]ColumnID)
	for _, c := range Columns {
		for _, id := range b.Columns[c] {
			if !b.Has(id) {
				return fmt.Errorf("%w: column %s lists unknown task %q", ErrInvalidBoard, c, id)
			}
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("%w: task %q listed in both %s and %s", ErrInvalidBoard, id, prev, c)
			}
			seen[id] = c
		}
	}
	return nil
}

func (s *Store) saveLocked(b *Board) error {
	if err := validate(b); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir(), 0755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal board: %w", err)
	}
	return writeFileAtomic(s.BoardPath(), data)
}

// writeFileAtomic writes to a temp sibling and renames it over path, so
// readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// GenerateID returns a fresh 8-character id not present on the board.
func GenerateID(b *Board) string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
		if b == nil || !b.Has(id) {
			return id
		}
	}
}

func (s *Store) markdownPath(id string) (string, error) {
	if err := sandbox.ValidateTaskID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir(), "task-"+id+".md"), nil
}

// ReadMarkdown returns the task body, or "" when it does not exist.
func (s *Store) ReadMarkdown(id string) (string, error) {
	path, err := s.markdownPath(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// WriteMarkdown stores the task body, creating tasks/ when needed.
func (s *Store) WriteMarkdown(id, content string) error {
	path, err := s.markdownPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir(), 0755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// DeleteMarkdown removes the task body, ignoring a missing file.
func (s *Store) DeleteMarkdown(id string) error {
	path, err := s.markdownPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
