// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package output bounds and renders tool output for the agent.
package output

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the total budget applied to tool output.
	DefaultMaxChars = 50000

	// DefaultMaxLineLength is the per-line budget applied to tool output.
	DefaultMaxLineLength = 2000

	// TruncationMarker terminates every truncated result.
	TruncationMarker = "[...truncated]"

	ellipsis = "..."
)

// Limits is a pair of bounds applied together.
type Limits struct {
	MaxChars int
	// MaxLineLength <= 0 disables the per-line bound.
	MaxLineLength int
}

// DefaultLimits returns the standard tool output limits.
func DefaultLimits() Limits {
	return Limits{MaxChars: DefaultMaxChars, MaxLineLength: DefaultMaxLineLength}
}

// Bound applies l to text. See Bound.
func (l Limits) Bound(text string) (string, bool) {
	return Bound(text, l.MaxChars, l.MaxLineLength)
}

// Bound limits text to maxTotal characters (runes) and, when maxLine > 0,
// each line to maxLine characters. Lines are counted with their terminators.
//
// Overlong lines are cut first and the total budget is applied to what
// remains, so one line can end up with two ellipses. A truncated result
// always ends with a line break followed by TruncationMarker.
func Bound(text string, maxTotal, maxLine int) (string, bool) {
	if text == "" {
		return "", false
	}

	var b strings.Builder
	total := 0
	truncated := false

	for rest := text; rest != ""; {
		var line string
		line, rest = nextLine(rest)

		if total >= maxTotal {
			truncated = true
			break
		}

		n := utf8.RuneCountInString(line)
		if maxLine > 0 && n > maxLine {
			body, term := splitTerminator(line)
			line = takeRunes(body, maxLine-len(ellipsis)) + ellipsis + term
			n = utf8.RuneCountInString(line)
			truncated = true
		}

		if total+n > maxTotal {
			remaining := maxTotal - total
			truncated = true
			if remaining > len(ellipsis) {
				b.WriteString(takeRunes(line, remaining-len(ellipsis)))
				b.WriteString(ellipsis)
			}
			break
		}

		b.WriteString(line)
		total += n
	}

	if !truncated {
		return b.String(), false
	}

	out := b.String()
	if !strings.HasSuffix(out, "\n") && !strings.HasSuffix(out, "\r") {
		out += "\n"
	}
	return out + TruncationMarker, true
}

// nextLine splits off the first line of s including its terminator, which
// may be "\n", "\r\n" or "\r".
func nextLine(s string) (line, rest string) {
	i := strings.IndexAny(s, "\r\n")
	if i < 0 {
		return s, ""
	}
	end := i + 1
	if s[i] == '\r' && end < len(s) && s[end] == '\n' {
		end++
	}
	return s[:end], s[end:]
}

func splitTerminator(line string) (body, term string) {
	body = strings.TrimRight(line, "\r\n")
	return body, line[len(body):]
}

// takeRunes returns the first n runes of s.
func takeRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
