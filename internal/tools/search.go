// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/agenttools/internal/pathguard"
	"github.com/jeranaias/agenttools/internal/process"
	"github.com/jeranaias/agenttools/internal/session"
)

// =============================================================================
// GLOB EXECUTOR
// =============================================================================

const globMaxMatches = 1000

func newGlobTool(sess *session.Session) *Tool {
	return &Tool{
		Name: "glob",
		Description: `Find files and directories using glob patterns.

* matches within one path segment, ? matches one character, ** matches any
number of segments and {a,b} matches either alternative. Patterns starting
with ** are rejected. At most 1000 matches are returned.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "pattern",
					Type:        "string",
					Required:    true,
					Description: "Glob pattern to match files/directories, e.g. `src/**/*.go` or `*.{js,ts}`.",
				},
				{
					Name:        "directory",
					Type:        "string",
					Description: "Absolute path to the directory to search in (defaults to working directory).",
				},
				{
					Name:        "include_dirs",
					Type:        "boolean",
					Description: "Whether to include directories in results.",
					Default:     true,
				},
			},
		},
		Group:     GroupFile,
		RiskLevel: RiskLow,
		Executor:  &GlobExecutor{sess: sess},
	}
}

// GlobExecutor implements glob.
type GlobExecutor struct {
	sess *session.Session
}

// Execute walks the search directory and returns sorted relative matches.
func (e *GlobExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	pattern := getStringParam(params, "pattern", "")
	directory := getStringParam(params, "directory", "")
	includeDirs := getBoolParam(params, "include_dirs", true)

	if pattern == "" {
		return failure("Pattern cannot be empty."), nil
	}
	if strings.HasPrefix(pattern, "**") {
		return failure("Pattern `%s` starts with '**' which is not allowed. This would recursively search all directories and may include large directories like `node_modules`. Use more specific patterns instead.\n\nTop-level directory contents:\n%s",
			pattern, listDirectory(e.sess.WorkRoot())), nil
	}

	patterns, err := compileGlob(pattern)
	if err != nil {
		return failure("Invalid glob pattern `%s`: %v", pattern, err), nil
	}

	root := e.sess.WorkRoot()
	if directory != "" {
		if !filepath.IsAbs(directory) {
			return failure("`%s` is not an absolute path. You must provide an absolute path to search.", directory), nil
		}
		canonical, err := pathguard.Canonicalize(directory)
		if err != nil {
			return failure("Invalid path `%s`: %v", directory, err), nil
		}
		if err := pathguard.RequireDir(pathguard.Resolved{Path: canonical, Original: directory}); err != nil {
			return fromError(err), nil
		}
		root = canonical
	}

	maxDepth := maxGlobDepth(patterns)
	var matches []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == root {
				return walkErr
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		segments := strings.Split(rel, "/")

		if (includeDirs || d.Type().IsRegular()) && matchAny(patterns, segments) {
			matches = append(matches, rel)
		}
		if d.IsDir() && maxDepth >= 0 && len(segments) >= maxDepth {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return failure("Failed to search for pattern %s. Error: %v", pattern, err), nil
	}

	sort.Strings(matches)

	message := fmt.Sprintf("No matches found for pattern `%s`.", pattern)
	if len(matches) > 0 {
		message = fmt.Sprintf("Found %d matches for pattern `%s`.", len(matches), pattern)
	}
	truncated := false
	if len(matches) > globMaxMatches {
		matches = matches[:globMaxMatches]
		truncated = true
		message += fmt.Sprintf(" Only the first %d matches are returned. You may want to use a more specific pattern.", globMaxMatches)
	}

	for i, m := range matches {
		matches[i] = filepath.FromSlash(m)
	}
	result := success(strings.Join(matches, "\n"), message)
	result.Truncated = truncated
	return result, nil
}

// listDirectory renders the top level of dir, directories first.
func listDirectory(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "(unable to list directory)"
	}
	var dirs, files []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, "  "+entry.Name()+"/")
		} else {
			files = append(files, "  "+entry.Name())
		}
	}
	return strings.Join(append(dirs, files...), "\n")
}

// =============================================================================
// GLOB MATCHING
// =============================================================================

// compileGlob expands braces and splits each alternative into segments.
func compileGlob(pattern string) ([][]string, error) {
	var compiled [][]string
	for _, alt := range expandBraces(filepath.ToSlash(pattern)) {
		alt = strings.TrimPrefix(alt, "./")
		segments := strings.Split(alt, "/")
		for _, seg := range segments {
			if seg == "**" {
				continue
			}
			if _, err := path.Match(seg, ""); err != nil {
				return nil, err
			}
		}
		compiled = append(compiled, segments)
	}
	return compiled, nil
}

// expandBraces expands the first {a,b} group recursively.
func expandBraces(pattern string) []string {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		return []string{pattern}
	}
	depth := 0
	for i := open; i < len(pattern); i++ {
		switch pattern[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var out []string
				for _, alt := range splitAlternatives(pattern[open+1 : i]) {
					out = append(out, expandBraces(pattern[:open]+alt+pattern[i+1:])...)
				}
				return out
			}
		}
	}
	return []string{pattern}
}

// splitAlternatives splits on commas outside nested braces.
func splitAlternatives(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// maxGlobDepth returns the deepest segment count any pattern can match, or
// -1 when a pattern contains "**".
func maxGlobDepth(patterns [][]string) int {
	depth := 0
	for _, segments := range patterns {
		for _, seg := range segments {
			if seg == "**" {
				return -1
			}
		}
		if len(segments) > depth {
			depth = len(segments)
		}
	}
	return depth
}

func matchAny(patterns [][]string, name []string) bool {
	for _, p := range patterns {
		if matchSegments(p, name) {
			return true
		}
	}
	return false
}

// matchSegments matches path segments, letting "**" consume zero or more
// segments.
func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			pattern = pattern[1:]
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchSegments(pattern, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], name[0]); err != nil || !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}

// =============================================================================
// GREP EXECUTOR
// =============================================================================

const (
	grepTimeout           = 60 * time.Second
	grepFilesWithMatches  = "files_with_matches"
	grepContent           = "content"
	grepCountMatches      = "count_matches"
	ripgrepBinary         = "rg"
	grepNoMatchesExitCode = 1
)

func newGrepTool(sess *session.Session) *Tool {
	return &Tool{
		Name: "grep",
		Description: `A powerful search tool based on ripgrep.

Always use this tool instead of running grep or rg through the shell. Use
ripgrep pattern syntax; escape braces like \{ to search for {. Output modes:
content shows matching lines, files_with_matches (default) shows file paths and
count_matches shows match counts.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "pattern",
					Type:        "string",
					Required:    true,
					Description: "The regular expression pattern to search for in file contents.",
				},
				{
					Name:        "path",
					Type:        "string",
					Description: "File or directory to search in. Defaults to the working directory. Absolute paths are required outside the working directory.",
					Default:     ".",
				},
				{
					Name:        "glob",
					Type:        "string",
					Description: "Glob pattern to filter files (e.g. `*.js`, `*.{ts,tsx}`).",
				},
				{
					Name:        "output_mode",
					Type:        "string",
					Description: "`content`, `files_with_matches` or `count_matches`.",
					Default:     grepFilesWithMatches,
					Enum:        []string{grepContent, grepFilesWithMatches, grepCountMatches},
				},
				{Name: "-B", Type: "integer", Description: "Lines to show before each match. Requires `content` mode.", Minimum: bound(0)},
				{Name: "-A", Type: "integer", Description: "Lines to show after each match. Requires `content` mode.", Minimum: bound(0)},
				{Name: "-C", Type: "integer", Description: "Lines to show before and after each match. Requires `content` mode.", Minimum: bound(0)},
				{Name: "-n", Type: "boolean", Description: "Show line numbers. Requires `content` mode.", Default: false},
				{Name: "-i", Type: "boolean", Description: "Case insensitive search.", Default: false},
				{
					Name:        "type",
					Type:        "string",
					Description: "File type to search, e.g. py, rust, js, go.",
				},
				{
					Name:        "head_limit",
					Type:        "integer",
					Description: "Limit output to the first N lines, like `| head -N`.",
					Minimum:     bound(0),
				},
				{
					Name:        "multiline",
					Type:        "boolean",
					Description: "Let `.` match newlines and patterns span lines.",
					Default:     false,
				},
			},
		},
		Group:     GroupFile,
		RiskLevel: RiskLow,
		Executor:  &GrepExecutor{sess: sess},
	}
}

// GrepExecutor implements grep on top of a provisioned ripgrep.
type GrepExecutor struct {
	sess *session.Session
}

// Execute runs ripgrep and bounds its output.
func (e *GrepExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	pattern := getStringParam(params, "pattern", "")
	if pattern == "" {
		return failure("Pattern cannot be empty."), nil
	}

	target, err := e.sess.Resolve(getStringParam(params, "path", "."))
	if err != nil {
		return fromError(err), nil
	}
	if !pathguard.Exists(target) {
		return fromError(&pathguard.PathError{Path: target.Original, Err: pathguard.ErrNotFound}), nil
	}

	rg, err := e.sess.Provisioner().Ensure(ctx, ripgrepBinary)
	if err != nil {
		return failure("Failed to grep. Error: %v", err), nil
	}

	argv := append([]string{rg}, grepArgs(params)...)
	argv = append(argv, "--regexp", pattern, "--", target.Path)

	res, err := e.sess.Runner().Run(ctx, argv, e.sess.WorkRoot(), grepTimeout)
	var exitErr *process.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && exitErr.ExitCode == grepNoMatchesExitCode:
		return success("", "No matches found"), nil
	case errors.Is(err, process.ErrTimeout):
		return failure("Failed to grep. Search killed by timeout (%s)", grepTimeout), nil
	case errors.As(err, &exitErr):
		return failure("Failed to grep. Error: %s", strings.TrimSpace(string(exitErr.Output))), nil
	default:
		return failure("Failed to grep. Error: %v", err), nil
	}

	out := strings.TrimRight(string(res.Output), "\n")
	if out == "" {
		return success("", "No matches found"), nil
	}

	message := ""
	if limit, ok := getOptionalIntParam(params, "head_limit"); ok {
		lines := strings.Split(out, "\n")
		if len(lines) > limit {
			out = strings.Join(lines[:limit], "\n") + fmt.Sprintf("\n... (results truncated to %d lines)", limit)
			message = fmt.Sprintf("Results truncated to first %d lines", limit)
		}
	}

	out, truncated := e.sess.Limits().Bound(out)
	if truncated {
		if message != "" {
			message += ". "
		}
		message += "Output was truncated."
	}
	result := success(out, message)
	result.Truncated = truncated || message != ""
	return result, nil
}

// grepArgs maps tool parameters to ripgrep flags.
func grepArgs(params map[string]interface{}) []string {
	var args []string
	if getBoolParam(params, "-i", false) {
		args = append(args, "--ignore-case")
	}
	if getBoolParam(params, "multiline", false) {
		args = append(args, "--multiline", "--multiline-dotall")
	}

	switch getStringParam(params, "output_mode", grepFilesWithMatches) {
	case grepContent:
		for _, flag := range []string{"-B", "-A", "-C"} {
			if n, ok := getOptionalIntParam(params, flag); ok {
				args = append(args, flag, strconv.Itoa(n))
			}
		}
		if getBoolParam(params, "-n", false) {
			args = append(args, "--line-number")
		}
	case grepCountMatches:
		args = append(args, "--count-matches")
	default:
		args = append(args, "--files-with-matches")
	}

	if g := getStringParam(params, "glob", ""); g != "" {
		args = append(args, "--glob", g)
	}
	if t := getStringParam(params, "type", ""); t != "" {
		args = append(args, "--type", t)
	}
	return args
}
