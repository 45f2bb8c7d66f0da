// Package sandbox keeps agent-supplied paths and identifiers inside the
// active project folder.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrOutsideProject is returned for any path that escapes the project root.
	ErrOutsideProject = errors.New("path outside project folder")
	// ErrInvalidTaskID is returned for task ids that fail the allow-list.
	ErrInvalidTaskID = errors.New("invalid task ID")
	// ErrInvalidHash is returned for malformed save-point hashes.
	ErrInvalidHash = errors.New("invalid save point hash")
)

var (
	taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	hashPattern   = regexp.MustCompile(`^[0-9a-fA-F]{4,40}$`)
)

// ValidateTaskID rejects ids that could traverse directories or carry shell
// metacharacters once interpolated into a file name or command.
func ValidateTaskID(id string) error {
	if !taskIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, id)
	}
	return nil
}

// ValidateHash accepts abbreviated or full hexadecimal commit hashes.
func ValidateHash(hash string) error {
	if !hashPattern.MatchString(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return nil
}

// ShellQuote wraps s in single quotes so it can be embedded in a POSIX shell
// command line verbatim.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ResolvePath resolves p against root and returns the canonical absolute
// target. Symlinks are followed on both sides; a target that does not exist
// yet is resolved through its deepest existing ancestor.
func ResolvePath(root, p string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}

	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	target = filepath.Clean(target)

	// Lexical check first so ".." never reaches the filesystem.
	if !within(rootAbs, target) && !within(rootReal, target) {
		return "", ErrOutsideProject
	}

	targetReal, err := evalExisting(target)
	if err != nil {
		return "", err
	}
	if !within(rootReal, targetReal) {
		return "", ErrOutsideProject
	}
	return targetReal, nil
}

// within reports whether target is root or a descendant of it.
func within(root, target string) bool {
	if filepath.VolumeName(root) != filepath.VolumeName(target) {
		return false
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if filepath.IsAbs(rel) {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// evalExisting follows symlinks for the longest existing prefix of path and
// re-appends the components that do not exist yet.
func evalExisting(path string) (string, error) {
	var missing []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		// A dangling symlink has no resolvable destination to check.
		if info, lerr := os.Lstat(current); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			return "", ErrOutsideProject
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}
