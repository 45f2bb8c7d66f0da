package git

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// setupTestRepo creates a temporary git repository for testing
func setupTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	tmpDir := t.TempDir()
	runGit(t, tmpDir, "init")
	runGit(t, tmpDir, "config", "user.name", "Test User")
	runGit(t, tmpDir, "config", "user.email", "test@example.com")
	runGit(t, tmpDir, "config", "commit.gpgsign", "false")
	return tmpDir
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, repoPath, filename, content string) {
	t.Helper()
	path := filepath.Join(repoPath, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

// commitFile creates a file and commits it
func commitFile(t *testing.T, repoPath, filename, content string) string {
	t.Helper()
	writeFile(t, repoPath, filename, content)
	runGit(t, repoPath, "add", filename)
	runGit(t, repoPath, "commit", "-m", "Add "+filename)
	return runGit(t, repoPath, "rev-parse", "HEAD")
}

func TestOpen(t *testing.T) {
	repoPath := setupTestRepo(t)

	if _, err := Open(repoPath); err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	if _, err := Open("/non/existent/path"); err == nil {
		t.Fatal("Expected error when opening non-existent repo")
	}
}

func TestIsRepo(t *testing.T) {
	repoPath := setupTestRepo(t)
	if !New(repoPath, nil).IsRepo() {
		t.Error("expected repository")
	}
	if New(t.TempDir(), nil).IsRepo() {
		t.Error("plain folder should not be a repository")
	}
}

func TestInit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n")

	repo := New(dir, nil)
	if err := repo.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !repo.IsRepo() {
		t.Fatal("Init should create a repository")
	}

	history := repo.History(10)
	if len(history) != 1 {
		t.Fatalf("expected 1 save point, got %d", len(history))
	}
	if history[0].Message != "Initial save point" {
		t.Errorf("message = %q", history[0].Message)
	}
	if history[0].FilesChanged != 1 {
		t.Errorf("FilesChanged = %d, want 1", history[0].FilesChanged)
	}
}

func TestInit_EmptyFolder(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	repo := New(t.TempDir(), nil)
	if err := repo.Init(); err != nil {
		t.Fatalf("Init on empty folder failed: %v", err)
	}
	if len(repo.History(0)) != 1 {
		t.Error("empty initial commit should be recorded")
	}
}

func TestStatus(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "keep.txt", "keep")
	commitFile(t, repoPath, "edit.txt", "original")
	commitFile(t, repoPath, "remove.txt", "bye")

	writeFile(t, repoPath, "edit.txt", "changed")
	if err := os.Remove(filepath.Join(repoPath, "remove.txt")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	writeFile(t, repoPath, "staged.txt", "new")
	runGit(t, repoPath, "add", "staged.txt")
	writeFile(t, repoPath, "untracked.txt", "?")

	status, err := New(repoPath, nil).Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	check := func(name string, got []string, want string) {
		if len(got) != 1 || got[0] != want {
			t.Errorf("%s = %v, want [%s]", name, got, want)
		}
	}
	check("Modified", status.Modified, "edit.txt")
	check("Deleted", status.Deleted, "remove.txt")
	check("Added", status.Added, "staged.txt")
	check("Untracked", status.Untracked, "untracked.txt")
}

func TestStatus_Clean(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "README.md", "# Test")

	repo := New(repoPath, nil)
	dirty, err := repo.HasUncommittedChanges()
	if err != nil {
		t.Fatalf("HasUncommittedChanges failed: %v", err)
	}
	if dirty {
		t.Error("expected clean repository")
	}
}

func TestStatus_NotRepository(t *testing.T) {
	if _, err := New(t.TempDir(), nil).Status(); !errors.Is(err, ErrNotRepository) {
		t.Errorf("Status error = %v, want ErrNotRepository", err)
	}
}

func TestCreateSavePoint(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "README.md", "# Test")
	repo := New(repoPath, nil)

	hash, err := repo.CreateSavePoint("nothing")
	if err != nil {
		t.Fatalf("CreateSavePoint failed: %v", err)
	}
	if hash != "" {
		t.Errorf("clean tree should produce no commit, got %s", hash)
	}

	writeFile(t, repoPath, "feature.go", "package feature\n")
	hash, err = repo.CreateSavePoint("Add feature")
	if err != nil {
		t.Fatalf("CreateSavePoint failed: %v", err)
	}
	if len(hash) != 40 {
		t.Fatalf("expected full hash, got %q", hash)
	}
	if head := runGit(t, repoPath, "rev-parse", "HEAD"); head != hash {
		t.Errorf("HEAD = %s, want %s", head, hash)
	}
	if dirty, _ := repo.HasUncommittedChanges(); dirty {
		t.Error("tree should be clean after save point")
	}
}

func TestAutoSaveBeforeAgent(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "README.md", "# Test")
	repo := New(repoPath, nil)

	saved, err := repo.AutoSaveBeforeAgent("Fix login")
	if err != nil {
		t.Fatalf("AutoSaveBeforeAgent failed: %v", err)
	}
	if saved {
		t.Error("clean tree should not be auto-saved")
	}

	writeFile(t, repoPath, "wip.txt", "work in progress")
	saved, err = repo.AutoSaveBeforeAgent("Fix login")
	if err != nil {
		t.Fatalf("AutoSaveBeforeAgent failed: %v", err)
	}
	if !saved {
		t.Fatal("dirty tree should be auto-saved")
	}

	latest := repo.History(1)[0]
	if latest.Message != "[auto] Before sending: Fix login" {
		t.Errorf("message = %q", latest.Message)
	}
	if !latest.IsAutoSave {
		t.Error("auto save should be flagged")
	}
}

func TestHistory(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "one\ntwo\n")
	commitFile(t, repoPath, "b.txt", "three\n")
	writeFile(t, repoPath, "a.txt", "one\n")
	runGit(t, repoPath, "commit", "-am", "Trim a\n\nLonger body")

	history := New(repoPath, nil).History(10)
	if len(history) != 3 {
		t.Fatalf("expected 3 save points, got %d", len(history))
	}
	if history[0].Message != "Trim a" {
		t.Errorf("newest message = %q, want subject line only", history[0].Message)
	}
	if history[0].Deletions != 1 || history[0].Insertions != 0 || history[0].FilesChanged != 1 {
		t.Errorf("unexpected stats: %+v", history[0])
	}
	if history[2].Message != "Add a.txt" || history[2].Insertions != 2 {
		t.Errorf("oldest entry = %+v", history[2])
	}
	if history[0].IsAutoSave {
		t.Error("user commit should not be flagged as auto save")
	}

	if limited := New(repoPath, nil).History(2); len(limited) != 2 {
		t.Errorf("limit ignored: got %d entries", len(limited))
	}
}

func TestHistory_NeverFails(t *testing.T) {
	if h := New(t.TempDir(), nil).History(10); h == nil || len(h) != 0 {
		t.Errorf("non-repo history = %v, want empty list", h)
	}

	repoPath := setupTestRepo(t)
	if h := New(repoPath, nil).History(10); len(h) != 0 {
		t.Errorf("repo without commits should have empty history, got %v", h)
	}
}

func TestSavePointDetail(t *testing.T) {
	repoPath := setupTestRepo(t)
	root := commitFile(t, repoPath, "a.txt", "one\ntwo\n")

	detail, err := New(repoPath, nil).SavePointDetail(root[:7])
	if err != nil {
		t.Fatalf("SavePointDetail(root) failed: %v", err)
	}
	if len(detail.Files) != 1 || detail.Files[0].Status != "A" || detail.Files[0].Insertions != 2 {
		t.Errorf("root detail = %+v", detail.Files)
	}

	writeFile(t, repoPath, "a.txt", "one\nTWO\n")
	writeFile(t, repoPath, "b.txt", "new\n")
	runGit(t, repoPath, "add", "a.txt", "b.txt")
	runGit(t, repoPath, "commit", "-m", "Change things")
	commitFile(t, repoPath, "c.txt", "c\n")
	if err := os.Remove(filepath.Join(repoPath, "c.txt")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	runGit(t, repoPath, "commit", "-am", "Drop c")

	repo := New(repoPath, nil)
	history := repo.History(3)
	changed, err := repo.SavePointDetail(history[2].Hash)
	if err != nil {
		t.Fatalf("SavePointDetail failed: %v", err)
	}
	if len(changed.Files) != 2 {
		t.Fatalf("expected 2 files, got %+v", changed.Files)
	}
	if f := changed.Files[0]; f.Path != "a.txt" || f.Status != "M" || f.Insertions != 1 || f.Deletions != 1 {
		t.Errorf("a.txt change = %+v", f)
	}
	if f := changed.Files[1]; f.Path != "b.txt" || f.Status != "A" {
		t.Errorf("b.txt change = %+v", f)
	}

	dropped, err := repo.SavePointDetail(history[0].Hash)
	if err != nil {
		t.Fatalf("SavePointDetail failed: %v", err)
	}
	if len(dropped.Files) != 1 || dropped.Files[0].Status != "D" {
		t.Errorf("deletion detail = %+v", dropped.Files)
	}
}

func TestSavePointDetail_InvalidHash(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "a")
	repo := New(repoPath, nil)

	if _, err := repo.SavePointDetail("--all"); err == nil {
		t.Error("option-like hash should be rejected")
	}
	if _, err := repo.SavePointDetail("deadbeef"); err == nil {
		t.Error("unknown hash should fail")
	}
}

func TestFileDiff(t *testing.T) {
	repoPath := setupTestRepo(t)
	first := commitFile(t, repoPath, "a.txt", "v1\n")
	second := commitFile(t, repoPath, "a.txt", "v2\n")
	if err := os.Remove(filepath.Join(repoPath, "a.txt")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	runGit(t, repoPath, "commit", "-am", "Remove a")
	third := runGit(t, repoPath, "rev-parse", "HEAD")

	repo := New(repoPath, nil)

	created, err := repo.FileDiff(first, "a.txt")
	if err != nil {
		t.Fatalf("FileDiff failed: %v", err)
	}
	if created.Before != "" || created.After != "v1\n" {
		t.Errorf("created diff = %+v", created)
	}

	changed, err := repo.FileDiff(second, "a.txt")
	if err != nil {
		t.Fatalf("FileDiff failed: %v", err)
	}
	if changed.Before != "v1\n" || changed.After != "v2\n" || len(changed.Hunks) != 1 {
		t.Errorf("changed diff = %+v", changed)
	}

	removed, err := repo.FileDiff(third, "a.txt")
	if err != nil {
		t.Fatalf("FileDiff failed: %v", err)
	}
	if removed.Before != "v2\n" || removed.After != "" {
		t.Errorf("removed diff = %+v", removed)
	}
}

func TestRevert(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "base\n")
	target := commitFile(t, repoPath, "b.txt", "added\n")

	repo := New(repoPath, nil)
	if err := repo.Revert(target); err != nil {
		t.Fatalf("Revert failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repoPath, "b.txt")); !os.IsNotExist(err) {
		t.Error("revert should remove b.txt")
	}
	if n := len(repo.History(10)); n != 3 {
		t.Errorf("revert should add a commit, history has %d", n)
	}
}

func TestRevert_Conflict(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "a.txt", "one\n")
	target := commitFile(t, repoPath, "a.txt", "two\n")
	head := commitFile(t, repoPath, "a.txt", "three\n")

	repo := New(repoPath, nil)
	err := repo.Revert(target)
	if !errors.Is(err, ErrRevertConflict) {
		t.Fatalf("Revert error = %v, want ErrRevertConflict", err)
	}

	if got := runGit(t, repoPath, "rev-parse", "HEAD"); got != head {
		t.Errorf("HEAD moved to %s", got)
	}
	if dirty, _ := repo.HasUncommittedChanges(); dirty {
		t.Error("aborted revert should leave a clean tree")
	}
	content, _ := os.ReadFile(filepath.Join(repoPath, "a.txt"))
	if string(content) != "three\n" {
		t.Errorf("a.txt = %q, want pre-revert content", content)
	}
}

func TestRestore(t *testing.T) {
	repoPath := setupTestRepo(t)
	first := commitFile(t, repoPath, "a.txt", "v1\n")
	commitFile(t, repoPath, "a.txt", "v2\n")

	repo := New(repoPath, nil)
	if err := repo.Restore(first[:8]); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	content, _ := os.ReadFile(filepath.Join(repoPath, "a.txt"))
	if string(content) != "v1\n" {
		t.Errorf("a.txt = %q, want v1", content)
	}
	if got := runGit(t, repoPath, "rev-parse", "HEAD"); got != first {
		t.Errorf("HEAD = %s, want %s", got, first)
	}
}

func TestRestore_RefusesDirtyTree(t *testing.T) {
	repoPath := setupTestRepo(t)
	first := commitFile(t, repoPath, "a.txt", "v1\n")
	head := commitFile(t, repoPath, "a.txt", "v2\n")
	writeFile(t, repoPath, "a.txt", "unsaved\n")

	err := New(repoPath, nil).Restore(first)
	if !errors.Is(err, ErrUncommittedChanges) {
		t.Fatalf("Restore error = %v, want ErrUncommittedChanges", err)
	}
	if got := runGit(t, repoPath, "rev-parse", "HEAD"); got != head {
		t.Errorf("HEAD moved to %s", got)
	}
	content, _ := os.ReadFile(filepath.Join(repoPath, "a.txt"))
	if string(content) != "unsaved\n" {
		t.Error("unsaved work must be preserved")
	}
}

// useGlobalExcludes points git at a temporary HOME whose excludes file
// lists patterns.
func useGlobalExcludes(t *testing.T, patterns ...string) {
	t.Helper()
	home := t.TempDir()
	excludes := filepath.Join(home, "global-ignore")
	if err := os.WriteFile(excludes, []byte(strings.Join(patterns, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("write excludes: %v", err)
	}
	config := "[core]\n\texcludesFile = " + filepath.ToSlash(excludes) + "\n"
	if err := os.WriteFile(filepath.Join(home, ".gitconfig"), []byte(config), 0644); err != nil {
		t.Fatalf("write gitconfig: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
}

func TestStatus_HonorsGlobalExcludes(t *testing.T) {
	useGlobalExcludes(t, ".DS_Store")
	repoPath := setupTestRepo(t)
	first := commitFile(t, repoPath, "a.txt", "v1\n")
	commitFile(t, repoPath, "a.txt", "v2\n")
	writeFile(t, repoPath, ".DS_Store", "finder")

	if out := runGit(t, repoPath, "status", "--porcelain"); out != "" {
		t.Fatalf("git status should be clean, got %q", out)
	}

	repo := New(repoPath, nil)
	dirty, err := repo.HasUncommittedChanges()
	if err != nil {
		t.Fatalf("HasUncommittedChanges failed: %v", err)
	}
	if dirty {
		t.Error("globally ignored file must not make the tree dirty")
	}

	saved, err := repo.AutoSaveBeforeAgent("Tidy")
	if err != nil || saved {
		t.Errorf("AutoSaveBeforeAgent = %v, %v; want false, nil", saved, err)
	}

	if err := repo.Restore(first); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	content, _ := os.ReadFile(filepath.Join(repoPath, "a.txt"))
	if string(content) != "v1\n" {
		t.Errorf("a.txt = %q, want v1", content)
	}
}

func TestParsePorcelain(t *testing.T) {
	out := " M edit.txt\x00D  gone.txt\x00R  new.txt\x00old.txt\x00A  added.txt\x00?? dir/new.txt\x00"
	status := parsePorcelain(out)

	check := func(name string, got []string, want ...string) {
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	check("Modified", status.Modified, "edit.txt")
	check("Deleted", status.Deleted, "gone.txt")
	check("Added", status.Added, "added.txt", "new.txt")
	check("Untracked", status.Untracked, "dir/new.txt")
}

func TestCurrentBranch(t *testing.T) {
	repoPath := setupTestRepo(t)
	commitFile(t, repoPath, "README.md", "# Test")

	branch, err := New(repoPath, nil).CurrentBranch()
	if err != nil {
		t.Fatalf("Failed to get current branch: %v", err)
	}
	if branch == "" {
		t.Error("expected a branch name")
	}
}
