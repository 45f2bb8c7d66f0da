package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileToolsRoundTrip(t *testing.T) {
	f := newFixture(t)

	dataMap(t, f.exec(t, WriteFile, map[string]any{"path": "src/app/main.go", "content": "package main\n"}))
	assert.Equal(t, []string{DomainFiles}, f.notifier.domains())

	data := dataMap(t, f.exec(t, ReadFile, map[string]any{"path": "src/app/main.go"}))
	assert.Equal(t, "package main\n", data["content"])

	writeProjectFile(t, f.root, "README.md", "hi")
	writeProjectFile(t, f.root, ".hidden", "x")
	writeProjectFile(t, f.root, ".env", "A=1")
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "node_modules", "x"), 0755))

	listing := dataMap(t, f.exec(t, ListFiles, nil))
	assert.Equal(t, ".", listing["path"])
	var names []string
	for _, e := range listing["files"].([]any) {
		names = append(names, e.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"src", ".env", "README.md"}, names)

	dataMap(t, f.exec(t, DeleteFile, map[string]any{"path": "README.md"}))
	_, err := os.Stat(filepath.Join(f.root, "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileToolsSandbox(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()
	writeProjectFile(t, outside, "secret.txt", "s3cret")
	require.NoError(t, os.Symlink(outside, filepath.Join(f.root, "escape")))

	cases := []struct {
		name  Name
		input map[string]any
	}{
		{ReadFile, map[string]any{"path": "../" + filepath.Base(outside) + "/secret.txt"}},
		{ReadFile, map[string]any{"path": filepath.Join(outside, "secret.txt")}},
		{ReadFile, map[string]any{"path": "escape/secret.txt"}},
		{WriteFile, map[string]any{"path": "escape/new.txt", "content": "x"}},
		{ListFiles, map[string]any{"path": ".."}},
		{DeleteFile, map[string]any{"path": "escape/secret.txt"}},
	}
	for _, tc := range cases {
		r := f.exec(t, tc.name, tc.input)
		assert.False(t, r.Success, "%s %v", tc.name, tc.input)
		assert.Equal(t, "Path outside project folder", r.Error, "%s %v", tc.name, tc.input)
	}

	content, err := os.ReadFile(filepath.Join(outside, "secret.txt"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(content))
	_, err = os.Stat(filepath.Join(outside, "new.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteFileRefusesDirectory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "dir"), 0755))
	r := f.exec(t, DeleteFile, map[string]any{"path": "dir"})
	assert.False(t, r.Success)
	assert.Empty(t, f.notifier.domains())
}
