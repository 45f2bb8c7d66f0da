// Package files performs sandboxed file operations relative to a project root.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"taskpilot/internal/sandbox"
)

// MaxReadSize caps how much of a single file is returned to callers.
const MaxReadSize = 10 * 1024 * 1024

var (
	ErrIsDirectory = errors.New("path is a directory")
	ErrBinaryFile  = errors.New("binary files cannot be opened as text")
	ErrTooLarge    = errors.New("file too large")
)

// IgnoredNames are never listed.
var IgnoredNames = map[string]bool{
	"node_modules": true,
	".git":         true,
	".DS_Store":    true,
	".Trash":       true,
	"thumbs.db":    true,
	".next":        true,
	".nuxt":        true,
	"dist":         true,
	"out":          true,
	".cache":       true,
	".turbo":       true,
}

// visibleDotfiles are the hidden names that are still worth showing.
var visibleDotfiles = map[string]bool{
	".env":       true,
	".gitignore": true,
}

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true,
	".webp": true, ".tiff": true, ".pdf": true, ".zip": true, ".gz": true, ".tar": true,
	".tgz": true, ".bz2": true, ".xz": true, ".7z": true, ".rar": true, ".exe": true,
	".dll": true, ".so": true, ".dylib": true, ".bin": true, ".wasm": true, ".class": true,
	".jar": true, ".o": true, ".a": true, ".woff": true, ".woff2": true, ".ttf": true,
	".otf": true, ".eot": true, ".mp3": true, ".mp4": true, ".mov": true, ".avi": true,
	".wav": true, ".flac": true, ".ogg": true, ".webm": true, ".sqlite": true, ".db": true,
}

// Entry is one row of a directory listing.
type Entry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	Size        *int64 `json:"size,omitempty"`
}

// IsBinaryPath reports whether the extension marks a non-text file.
func IsBinaryPath(path string) bool {
	return binaryExtensions[strings.ToLower(filepath.Ext(path))]
}

// List returns the visible entries of dir, directories first.
func List(root, dir string) ([]Entry, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := sandbox.ResolvePath(root, dir)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if IgnoredNames[name] {
			continue
		}
		if strings.HasPrefix(name, ".") && !visibleDotfiles[name] {
			continue
		}
		entry := Entry{Name: name, IsDirectory: de.IsDir()}
		if !entry.IsDirectory {
			if info, err := de.Info(); err == nil {
				size := info.Size()
				entry.Size = &size
			}
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDirectory != entries[j].IsDirectory {
			return entries[i].IsDirectory
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// Read returns the text content of a file inside root.
func Read(root, path string) (string, error) {
	abs, err := sandbox.ResolvePath(root, path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	if IsBinaryPath(abs) {
		return "", fmt.Errorf("%w: %s", ErrBinaryFile, path)
	}
	if info.Size() > MaxReadSize {
		return "", fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, path, info.Size(), MaxReadSize)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write stores content at path, creating parent directories.
func Write(root, path, content string) error {
	abs, err := sandbox.ResolvePath(root, path)
	if err != nil {
		return err
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	return os.WriteFile(abs, []byte(content), 0644)
}

// Delete removes a single file. Directories are refused.
func Delete(root, path string) error {
	abs, err := sandbox.ResolvePath(root, path)
	if err != nil {
		return err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	return os.Remove(abs)
}
