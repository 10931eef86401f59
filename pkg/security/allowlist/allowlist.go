// Package allowlist holds the host files a task may hand to the browser for
// upload. Entries and candidates are compared in canonical form: absolute,
// cleaned, with ~ expanded and symbolic links resolved, so two spellings of
// the same file always compare equal and a symlink cannot smuggle in a path
// that is not on the list.
package allowlist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// List is an immutable, ordered set of canonical file paths.
type List struct {
	entries []string
	set     map[string]struct{}
}

// NotAllowedError reports a path that matches no entry.
type NotAllowedError struct {
	Path     string
	Resolved string
	Allowed  []string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("file path %s (resolved: %s) is not in the allowed list: [%s]",
		e.Path, e.Resolved, strings.Join(e.Allowed, ", "))
}

// New canonicalizes paths into a list. Order is kept and duplicates dropped.
func New(paths []string) (*List, error) {
	l := &List{set: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		canonical, err := Canonicalize(p)
		if err != nil {
			return nil, fmt.Errorf("invalid upload path %q: %w", p, err)
		}
		if _, dup := l.set[canonical]; dup {
			continue
		}
		l.set[canonical] = struct{}{}
		l.entries = append(l.entries, canonical)
	}
	return l, nil
}

// Check returns the canonical form of path if it is on the list.
// A nil or empty list allows nothing.
func (l *List) Check(path string) (string, error) {
	canonical, err := Canonicalize(path)
	if err != nil {
		return "", err
	}
	if l != nil {
		if _, ok := l.set[canonical]; ok {
			return canonical, nil
		}
	}
	return "", &NotAllowedError{Path: path, Resolved: canonical, Allowed: l.Entries()}
}

// Entries returns the canonical entries in their original order.
func (l *List) Entries() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Within returns the entries located inside dir (or equal to it).
func (l *List) Within(dir string) ([]string, error) {
	root, err := Canonicalize(dir)
	if err != nil {
		return nil, err
	}
	var inside []string
	for _, e := range l.Entries() {
		if IsWithin(root, e) {
			inside = append(inside, e)
		}
	}
	return inside, nil
}

// IsWithin reports whether path is root or a descendant of it. Both must be canonical.
func IsWithin(root, path string) bool {
	return path == root || strings.HasPrefix(path+string(filepath.Separator), root+string(filepath.Separator))
}

// Canonicalize converts path to an absolute, cleaned path with ~ expanded
// and symbolic links resolved. Paths that do not exist yet are resolved
// through their deepest existing ancestor.
func Canonicalize(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	expanded := path
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~: %w", err)
		}
		expanded = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return resolveSymlinks(filepath.Clean(absPath)), nil
}

// resolveSymlinks resolves symlinks in a path, handling non-existent paths
// by resolving the deepest existing ancestor and re-appending the rest.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var components []string
	currentPath := path

	for {
		if resolved, err := filepath.EvalSymlinks(currentPath); err == nil {
			result := resolved
			for i := len(components) - 1; i >= 0; i-- {
				result = filepath.Join(result, components[i])
			}
			return result
		}

		dir := filepath.Dir(currentPath)
		if dir == currentPath {
			return path
		}

		components = append(components, filepath.Base(currentPath))
		currentPath = dir
	}
}
