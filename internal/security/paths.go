// Package security guards file names and paths that arrive over HTTP.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDir is returned when a requested path resolves outside its
// base directory.
var ErrOutsideDir = errors.New("path escapes the data directory")

// ResolveWithin joins name onto dir and returns the resulting path after
// checking, with symlinks resolved, that it stays inside dir. Absolute names
// are rejected.
func ResolveWithin(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrOutsideDir)
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s is absolute", ErrOutsideDir, name)
	}

	base, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	base, err = filepath.EvalSymlinks(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory symlinks: %w", err)
	}

	full := filepath.Join(base, name)
	rel, err := filepath.Rel(base, canonical(full))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDir, name)
	}
	return full, nil
}

// canonical resolves symlinks in the longest existing prefix of p.
func canonical(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p
	}
	return filepath.Join(canonical(parent), filepath.Base(p))
}

// SanitizeFilename reduces s to a safe base name for downloads. Letters,
// digits and the characters ". _ - ~" are kept; any other run collapses to
// one underscore. The result is never empty.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range filepath.Base(s) {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-', r == '~':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "data"
	}
	return out
}
