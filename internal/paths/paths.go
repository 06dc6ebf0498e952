// Package paths holds the path arithmetic shared by the solution model, the
// reconciler and the watcher. Node paths are absolute and cleaned; display
// paths are workspace-relative with forward slashes.
package paths

import (
	"path/filepath"
	"strings"

	"slnsync/internal/errors"
)

// Clean returns the absolute, cleaned form of p.
func Clean(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// Child joins a directory path and a node name.
func Child(dir, name string) string {
	return filepath.Join(dir, name)
}

// ValidateName rejects names that cannot be a single path element.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New(errors.InvalidArgument, "name must not be empty", nil)
	case name == "." || name == "..":
		return errors.Newf(errors.InvalidArgument, "name %q is reserved", name)
	case strings.ContainsAny(name, `/\`):
		return errors.Newf(errors.InvalidArgument, "name %q contains a path separator", name)
	}
	return nil
}

// IsUnder reports whether p equals dir or lies below it. Both are compared
// lexically after cleaning.
func IsUnder(p, dir string) bool {
	p, dir = filepath.Clean(p), filepath.Clean(dir)
	if p == dir {
		return true
	}
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Rebase moves p from below oldDir to the same relative place below newDir.
// ok is false when p is not under oldDir.
func Rebase(p, oldDir, newDir string) (string, bool) {
	if !IsUnder(p, oldDir) {
		return p, false
	}
	rel, err := filepath.Rel(filepath.Clean(oldDir), filepath.Clean(p))
	if err != nil {
		return p, false
	}
	return filepath.Join(newDir, rel), true
}

// StripSuffixFold removes suffix from name, ignoring case. ok is false when
// name does not end in suffix.
func StripSuffixFold(name, suffix string) (string, bool) {
	if len(name) < len(suffix) || !strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return name, false
	}
	return name[:len(name)-len(suffix)], true
}

// HasSuffixFold reports whether name ends in suffix, ignoring case.
func HasSuffixFold(name, suffix string) bool {
	_, ok := StripSuffixFold(name, suffix)
	return ok
}

// Display returns p relative to root for logs and CLI output, or p itself
// when it is outside root.
func Display(p, root string) string {
	if root == "" || !IsUnder(p, root) {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}
