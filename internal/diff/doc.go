// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff renders line-level unified diffs of file edits.
//
// Diffs are shown to the human approver before an edit is applied, so the
// output favours readability over patch compatibility: a/ and b/ headers,
// three lines of context, and an optional cap on the number of lines.
//
// # Key Types
//
//   - DiffLine: one context, added or removed line with its line numbers
//   - DiffHunk: a run of changes with surrounding context
//   - Diff: all hunks for one file plus addition/deletion counts
//
// # Usage
//
//	d := diff.ComputeDiff("main.go", before, after)
//	fmt.Println(d.Summary())          // Modified +3 -1
//	fmt.Print(diff.Preview(d, 40))    // unified text, at most 40 lines
package diff
