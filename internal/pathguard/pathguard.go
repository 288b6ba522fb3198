// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrPathNotAbsolute is returned when a relative path resolves outside
	// the work root.
	ErrPathNotAbsolute = errors.New("path outside work root must be absolute")

	// ErrNotFound is returned when a required path does not exist.
	ErrNotFound = errors.New("path does not exist")

	// ErrNotAFile is returned when a path exists but is not a regular file.
	ErrNotAFile = errors.New("path is not a file")

	// ErrNotADirectory is returned when a path exists but is not a directory.
	ErrNotADirectory = errors.New("path is not a directory")
)

// PathError reports a path failure using the path exactly as the caller
// supplied it. Err is one of the package sentinels or an underlying I/O
// error.
type PathError struct {
	Path string
	// Parent marks failures about the path's parent directory.
	Parent bool
	Err    error
}

func (e *PathError) Error() string {
	subject := "`" + e.Path + "`"
	if e.Parent {
		subject += " parent directory"
	}
	switch e.Err {
	case ErrPathNotAbsolute:
		return fmt.Sprintf("`%s` is not an absolute path. You must provide an absolute path to access a file outside the working directory.", e.Path)
	case ErrNotFound:
		return subject + " does not exist."
	case ErrNotAFile:
		return subject + " is not a file."
	case ErrNotADirectory:
		return subject + " is not a directory."
	default:
		return fmt.Sprintf("%s: %v", subject, e.Err)
	}
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// =============================================================================
// RESOLUTION
// =============================================================================

// Resolved is the canonical form of a tool-supplied path. It is derived per
// call and never stored.
type Resolved struct {
	// Path is absolute and canonical.
	Path string

	// OutsideRoot is true when Path is neither the work root nor below it.
	OutsideRoot bool

	// Original is the path as the caller supplied it, used in messages.
	Original string
}

// Resolve maps path to a canonical absolute path relative to workRoot.
//
// Resolve never creates anything on disk. It fails with ErrPathNotAbsolute
// (wrapped in *PathError) when the result lies outside the root and path,
// after "~" expansion, was not absolute.
func Resolve(path, workRoot string) (Resolved, error) {
	root, err := Canonicalize(workRoot)
	if err != nil {
		return Resolved{}, fmt.Errorf("resolve work root %q: %w", workRoot, err)
	}

	expanded, err := ExpandHome(path)
	if err != nil {
		return Resolved{}, &PathError{Path: path, Err: err}
	}

	absolute := filepath.IsAbs(expanded)
	joined := expanded
	if !absolute {
		// Left unjoined so symlink evaluation sees ".." in its original place
		joined = root + string(filepath.Separator) + expanded
	}

	canonical, err := Canonicalize(joined)
	if err != nil {
		return Resolved{}, &PathError{Path: path, Err: err}
	}

	outside := !Within(canonical, root)
	if outside && !absolute {
		return Resolved{}, &PathError{Path: path, Err: ErrPathNotAbsolute}
	}

	return Resolved{Path: canonical, OutsideRoot: outside, Original: path}, nil
}

// ExpandHome replaces a leading "~" or "~/" with the current user's home
// directory. Other paths are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// Canonicalize returns the absolute path with every symlink and ".."
// resolved. Components that do not exist are resolved by canonicalizing the
// deepest existing ancestor and re-appending the missing suffix.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		path = abs
	}

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, nil
	}

	// Walk up until an ancestor exists
	clean := filepath.Clean(path)
	var missing []string
	current := clean
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			parts := append([]string{resolved}, missing...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return clean, nil
		}
		missing = append([]string{filepath.Base(current)}, missing...)
		current = parent
	}
}

// Within reports whether path is root or a descendant of root. Both must be
// canonical.
func Within(path, root string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// =============================================================================
// PRECONDITIONS
// =============================================================================

// RequireFile checks that r names an existing regular file.
func RequireFile(r Resolved) error {
	info, err := os.Stat(r.Path)
	if err != nil {
		return statError(r.Original, false, err)
	}
	if !info.Mode().IsRegular() {
		return &PathError{Path: r.Original, Err: ErrNotAFile}
	}
	return nil
}

// RequireDir checks that r names an existing directory.
func RequireDir(r Resolved) error {
	info, err := os.Stat(r.Path)
	if err != nil {
		return statError(r.Original, false, err)
	}
	if !info.IsDir() {
		return &PathError{Path: r.Original, Err: ErrNotADirectory}
	}
	return nil
}

// RequireParentDir checks that the directory containing r exists. It is the
// precondition for creating r.
func RequireParentDir(r Resolved) error {
	info, err := os.Stat(filepath.Dir(r.Path))
	if err != nil {
		return statError(r.Original, true, err)
	}
	if !info.IsDir() {
		return &PathError{Path: r.Original, Parent: true, Err: ErrNotADirectory}
	}
	return nil
}

// Exists reports whether r names anything on disk.
func Exists(r Resolved) bool {
	_, err := os.Stat(r.Path)
	return err == nil
}

func statError(original string, parent bool, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return &PathError{Path: original, Parent: parent, Err: ErrNotFound}
	}
	return &PathError{Path: original, Parent: parent, Err: err}
}
