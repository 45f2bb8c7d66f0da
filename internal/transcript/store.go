// Package transcript archives cleared conversations as zstd-compressed
// JSON, grouped per project folder.
package transcript

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"

	"taskpilot/internal/llm"
)

// ErrNotFound is returned for unknown transcript ids.
var ErrNotFound = errors.New("transcript not found")

const titleLimit = 80

// Transcript describes one archived conversation.
type Transcript struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Title      string    `json:"title"`
	Messages   int       `json:"messages"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Store manages transcript persistence
type Store struct {
	baseDir string
	mu      sync.RWMutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewStore(baseDir string) (*Store, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{baseDir: baseDir, encoder: encoder, decoder: decoder}, nil
}

// projectDir keys a project folder by a short hash of its path.
func (s *Store) projectDir(project string) string {
	h := sha256.Sum256([]byte(project))
	return filepath.Join(s.baseDir, fmt.Sprintf("%x", h[:8]))
}

// Archive saves history and returns its metadata. Empty histories are
// skipped.
func (s *Store) Archive(project string, history []llm.Message) error {
	_, err := s.Save(project, history)
	return err
}

func (s *Store) Save(project string, history []llm.Message) (*Transcript, error) {
	if len(history) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	t := &Transcript{
		ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Project:    project,
		Title:      titleOf(history),
		Messages:   len(history),
		ArchivedAt: now,
	}

	dir := filepath.Join(s.projectDir(project), t.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	metadataJSON, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metadataJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	messagesJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	compressed := s.encoder.EncodeAll(messagesJSON, nil)
	if err := os.WriteFile(filepath.Join(dir, "messages.zst"), compressed, 0o644); err != nil {
		return nil, fmt.Errorf("write messages: %w", err)
	}
	return t, nil
}

// Load returns an archived conversation.
func (s *Store) Load(project, id string) (*Transcript, []llm.Message, error) {
	if !validID(id) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.projectDir(project), id)
	metadataJSON, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read metadata: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(metadataJSON, &t); err != nil {
		return nil, nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	compressed, err := os.ReadFile(filepath.Join(dir, "messages.zst"))
	if err != nil {
		return nil, nil, fmt.Errorf("read messages: %w", err)
	}
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress messages: %w", err)
	}
	var messages []llm.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return &t, messages, nil
}

// List returns a project's transcripts, newest first. Unreadable entries
// are skipped.
func (s *Store) List(project string) ([]Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := s.projectDir(project)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Transcript
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metadataJSON, err := os.ReadFile(filepath.Join(dir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var t Transcript
		if json.Unmarshal(metadataJSON, &t) == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) Delete(project, id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(filepath.Join(s.projectDir(project), id))
}

func validID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// titleOf uses the first user message, truncated.
func titleOf(history []llm.Message) string {
	for _, m := range history {
		if m.Role != llm.RoleUser {
			continue
		}
		if text := m.Text(); text != "" {
			runes := []rune(text)
			if len(runes) > titleLimit {
				return string(runes[:titleLimit]) + "…"
			}
			return text
		}
	}
	return "Conversation"
}
