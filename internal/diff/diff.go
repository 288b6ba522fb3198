// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ContextLines is the number of unchanged lines kept around each change.
const ContextLines = 3

// =============================================================================
// DIFF TYPES
// =============================================================================

// DiffLineType represents the type of a diff line.
type DiffLineType int

const (
	DiffLineContext DiffLineType = iota
	DiffLineAdded
	DiffLineRemoved
)

// Prefix returns the unified diff marker for this line type.
func (t DiffLineType) Prefix() string {
	switch t {
	case DiffLineAdded:
		return "+"
	case DiffLineRemoved:
		return "-"
	default:
		return " "
	}
}

// DiffLine is a single line in a diff.
type DiffLine struct {
	Type    DiffLineType
	Content string // without the line terminator
	OldLine int    // 1-based line in the old text, 0 if added
	NewLine int    // 1-based line in the new text, 0 if removed
}

// DiffHunk is a contiguous section of changes with context.
type DiffHunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []DiffLine
}

// DiffStats counts changed lines.
type DiffStats struct {
	Additions int
	Deletions int
	FileMode  string // "new", "modified" or "deleted"
}

// Diff is the complete line diff of one file.
type Diff struct {
	FilePath string
	Hunks    []DiffHunk
	Stats    DiffStats
}

// Empty reports whether the two texts were identical.
func (d *Diff) Empty() bool {
	return len(d.Hunks) == 0
}

// =============================================================================
// DIFF COMPUTATION
// =============================================================================

// ComputeDiff returns the line diff between oldContent and newContent.
func ComputeDiff(filePath, oldContent, newContent string) *Diff {
	d := &Diff{FilePath: filePath}
	switch {
	case oldContent == "" && newContent != "":
		d.Stats.FileMode = "new"
	case oldContent != "" && newContent == "":
		d.Stats.FileMode = "deleted"
	default:
		d.Stats.FileMode = "modified"
	}

	lines := lineDiff(oldContent, newContent)
	for _, l := range lines {
		switch l.Type {
		case DiffLineAdded:
			d.Stats.Additions++
		case DiffLineRemoved:
			d.Stats.Deletions++
		}
	}
	d.Hunks = groupIntoHunks(lines, ContextLines)
	return d
}

// lineDiff runs diff-match-patch in line mode and numbers the result.
func lineDiff(oldContent, newContent string) []DiffLine {
	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), table)

	var out []DiffLine
	oldNo, newNo := 0, 0
	for _, chunk := range diffs {
		for _, text := range splitLines(chunk.Text) {
			line := DiffLine{Content: text}
			switch chunk.Type {
			case diffmatchpatch.DiffEqual:
				oldNo++
				newNo++
				line.Type, line.OldLine, line.NewLine = DiffLineContext, oldNo, newNo
			case diffmatchpatch.DiffDelete:
				oldNo++
				line.Type, line.OldLine = DiffLineRemoved, oldNo
			case diffmatchpatch.DiffInsert:
				newNo++
				line.Type, line.NewLine = DiffLineAdded, newNo
			}
			out = append(out, line)
		}
	}
	return out
}

// splitLines splits text into lines without terminators. A trailing newline
// does not produce an empty final line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// groupIntoHunks cuts lines into hunks, merging changes separated by no
// more than twice the context.
func groupIntoHunks(lines []DiffLine, context int) []DiffHunk {
	var hunks []DiffHunk
	n := len(lines)

	for i := 0; i < n; {
		if lines[i].Type == DiffLineContext {
			i++
			continue
		}

		start := max(0, i-context)
		last := i
		for j := i + 1; j < n; {
			if lines[j].Type != DiffLineContext {
				last = j
				j++
				continue
			}
			k := j
			for k < n && lines[k].Type == DiffLineContext {
				k++
			}
			if k == n || k-j > 2*context {
				break
			}
			j = k
		}
		stop := min(n, last+context+1)

		hunks = append(hunks, newHunk(lines, start, stop))
		i = stop
	}
	return hunks
}

func newHunk(lines []DiffLine, start, stop int) DiffHunk {
	h := DiffHunk{Lines: lines[start:stop]}

	oldBefore, newBefore := 0, 0
	for _, l := range lines[:start] {
		if l.OldLine > 0 {
			oldBefore++
		}
		if l.NewLine > 0 {
			newBefore++
		}
	}
	for _, l := range h.Lines {
		if l.OldLine > 0 {
			h.OldCount++
		}
		if l.NewLine > 0 {
			h.NewCount++
		}
	}

	// An empty side starts at the line before the hunk
	h.OldStart = oldBefore
	if h.OldCount > 0 {
		h.OldStart++
	}
	h.NewStart = newBefore
	if h.NewCount > 0 {
		h.NewStart++
	}
	return h
}

// =============================================================================
// UNIFIED DIFF FORMAT
// =============================================================================

// FormatUnifiedDiff returns the diff in unified format.
func FormatUnifiedDiff(d *Diff) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n", d.FilePath)
	fmt.Fprintf(&sb, "+++ b/%s\n", d.FilePath)

	for _, hunk := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", hunk.OldStart, hunk.OldCount, hunk.NewStart, hunk.NewCount)
		for _, line := range hunk.Lines {
			sb.WriteString(line.Type.Prefix())
			sb.WriteString(line.Content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Preview formats d and keeps at most maxLines lines, noting how many were
// left out. maxLines <= 0 keeps everything.
func Preview(d *Diff, maxLines int) string {
	text := FormatUnifiedDiff(d)
	if maxLines <= 0 {
		return text
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= maxLines {
		return text
	}
	return strings.Join(lines[:maxLines], "") + fmt.Sprintf("... (%d more lines)\n", len(lines)-maxLines)
}

// Summary returns a short description such as "Modified +3 -1".
func (d *Diff) Summary() string {
	var parts []string
	switch d.Stats.FileMode {
	case "new":
		parts = append(parts, "New file")
	case "deleted":
		parts = append(parts, "File deleted")
	default:
		parts = append(parts, "Modified")
	}
	if d.Stats.Additions > 0 {
		parts = append(parts, fmt.Sprintf("+%d", d.Stats.Additions))
	}
	if d.Stats.Deletions > 0 {
		parts = append(parts, fmt.Sprintf("-%d", d.Stats.Deletions))
	}
	return strings.Join(parts, " ")
}
