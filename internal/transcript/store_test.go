package transcript

import (
	"errors"
	"strings"
	"testing"
	"time"

	"taskpilot/internal/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func sampleHistory() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleUser, Blocks: []llm.Block{llm.TextBlock("Create a task for the login bug")}},
		{Role: llm.RoleAssistant, Blocks: []llm.Block{
			llm.ToolUseBlock(llm.ToolCall{ID: "call_1", Name: "create_task", Input: map[string]any{"title": "Fix login"}}),
		}},
		{Role: llm.RoleUser, Blocks: []llm.Block{llm.ToolResultBlock("call_1", `{"success":true}`, false)}},
		{Role: llm.RoleAssistant, Blocks: []llm.Block{llm.TextBlock("Done.")}},
	}
}

func TestStore_SaveLoad(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save("/projects/app", sampleHistory())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Title != "Create a task for the login bug" {
		t.Errorf("Title = %q", saved.Title)
	}
	if saved.Messages != 4 {
		t.Errorf("Messages = %d", saved.Messages)
	}

	meta, messages, err := s.Load("/projects/app", saved.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if meta.ID != saved.ID || meta.Project != "/projects/app" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	call := messages[1].Blocks[0].Call
	if call == nil || call.Name != "create_task" || call.Input["title"] != "Fix login" {
		t.Errorf("tool call not preserved: %+v", call)
	}
	if messages[2].Blocks[0].ToolUseID != "call_1" {
		t.Errorf("tool result not preserved: %+v", messages[2].Blocks[0])
	}
	if messages[3].Text() != "Done." {
		t.Errorf("text not preserved: %q", messages[3].Text())
	}
}

func TestStore_EmptyHistorySkipped(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Save("/p", nil)
	if err != nil || got != nil {
		t.Errorf("Save(nil) = %v, %v", got, err)
	}
	if err := s.Archive("/p", nil); err != nil {
		t.Errorf("Archive(nil): %v", err)
	}
	list, _ := s.List("/p")
	if len(list) != 0 {
		t.Errorf("expected no transcripts, got %d", len(list))
	}
}

func TestStore_ListPerProject(t *testing.T) {
	s := newTestStore(t)

	if err := s.Archive("/a", sampleHistory()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := s.Archive("/a", sampleHistory()[:1]); err != nil {
		t.Fatal(err)
	}
	if err := s.Archive("/b", sampleHistory()); err != nil {
		t.Fatal(err)
	}

	list, err := s.List("/a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 transcripts for /a, got %d", len(list))
	}
	if list[0].Messages != 1 || list[1].Messages != 4 {
		t.Errorf("expected newest first, got %+v", list)
	}

	other, _ := s.List("/b")
	if len(other) != 1 {
		t.Errorf("expected 1 transcript for /b, got %d", len(other))
	}
	none, err := s.List("/never")
	if err != nil || len(none) != 0 {
		t.Errorf("unknown project: %v, %v", none, err)
	}
}

func TestStore_LoadUnknown(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Load("/p", "01ARZ3NDEKTSV4RRFFQ69G5FAV"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Load("/p", "../../etc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a malformed id, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	saved, _ := s.Save("/p", sampleHistory())
	if err := s.Delete("/p", saved.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Load("/p", saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestTitleOf(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := titleOf([]llm.Message{{Role: llm.RoleUser, Blocks: []llm.Block{llm.TextBlock(long)}}})
	if len([]rune(got)) != titleLimit+1 || !strings.HasSuffix(got, "…") {
		t.Errorf("long title not truncated: %q", got)
	}
	if got := titleOf(nil); got != "Conversation" {
		t.Errorf("empty title = %q", got)
	}
}
