// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jeranaias/agenttools/internal/pathguard"
	"github.com/jeranaias/agenttools/internal/session"
)

// =============================================================================
// READ LIMITS
// =============================================================================

const (
	readMaxLines      = 1000
	readMaxLineLength = 2000
	readMaxBytes      = 100 << 10
	sniffBytes        = 32
)

// binarySignatures are magic prefixes of formats read_file refuses.
var binarySignatures = [][]byte{
	[]byte("\x89PNG"),
	[]byte("\xff\xd8\xff"),
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	[]byte("RIFF"),
	[]byte("PK\x03\x04"),
	[]byte("PK\x05\x06"),
	[]byte("%PDF"),
	[]byte("\x7fELF"),
	[]byte("MZ"),
	[]byte("\x00\x00\x00\x1cftyp"),
	[]byte("\x00\x00\x00\x20ftyp"),
}

// isBinaryHeader reports whether header looks like a binary file.
func isBinaryHeader(header []byte) bool {
	for _, sig := range binarySignatures {
		if bytes.HasPrefix(header, sig) {
			return true
		}
	}
	return bytes.IndexByte(header, 0) >= 0
}

// =============================================================================
// READ EXECUTOR
// =============================================================================

func newReadFileTool(sess *session.Session) *Tool {
	return &Tool{
		Name: "read_file",
		Description: `Read text content from a file.

Content is returned with line numbers before each line (like ` + "`cat -n`" + `).
Use line_offset and n_lines when you only need part of the file. At most 1000
lines are read at once and lines longer than 2000 characters are truncated.
Only text files can be read; use read_media_file for images and videos.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "path",
					Type:        "string",
					Required:    true,
					Description: "The path to the file to read. Absolute paths are required when reading files outside the working directory.",
				},
				{
					Name:        "line_offset",
					Type:        "integer",
					Description: "The line number to start reading from. Defaults to the beginning of the file.",
					Default:     1,
					Minimum:     bound(1),
				},
				{
					Name:        "n_lines",
					Type:        "integer",
					Description: "The number of lines to read. Defaults to 1000, which is the max allowed value.",
					Default:     readMaxLines,
					Minimum:     bound(1),
				},
			},
		},
		Group:     GroupFile,
		RiskLevel: RiskLow,
		Executor:  &ReadExecutor{sess: sess},
	}
}

// ReadExecutor implements read_file.
type ReadExecutor struct {
	sess *session.Session
}

// Execute reads a file and returns its numbered lines.
func (e *ReadExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	path := getStringParam(params, "path", "")
	offset := getIntParam(params, "line_offset", 1)
	limit := getIntParam(params, "n_lines", readMaxLines)

	if path == "" {
		return failure("File path cannot be empty."), nil
	}

	resolved, err := e.sess.Resolve(path)
	if err != nil {
		return fromError(err), nil
	}
	if err := pathguard.RequireFile(resolved); err != nil {
		return fromError(err), nil
	}

	file, err := os.Open(resolved.Path)
	if err != nil {
		return failure("Failed to read %s. Error: %v", path, err), nil
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	if header, _ := reader.Peek(sniffBytes); isBinaryHeader(header) {
		return failure("`%s` appears to be a binary file. Use read_media_file for images/videos, or appropriate shell commands for other binary formats.", path), nil
	}

	var (
		out             strings.Builder
		read            int
		nBytes          int
		truncatedLines  []string
		maxLinesReached bool
		maxBytesReached bool
		lineNo          int
	)

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		line, err := reader.ReadString('\n')
		if line == "" && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return failure("Failed to read %s. Error: %v", path, err), nil
		}
		lineNo++
		if lineNo < offset {
			continue
		}

		line = strings.ToValidUTF8(line, "�")
		if cut, ok := truncateLine(line, readMaxLineLength); ok {
			line = cut
			truncatedLines = append(truncatedLines, strconv.Itoa(lineNo))
		}
		fmt.Fprintf(&out, "%6d\t%s", lineNo, line)
		read++
		nBytes += len(line)

		if read >= limit {
			break
		}
		if read >= readMaxLines {
			maxLinesReached = true
			break
		}
		if nBytes >= readMaxBytes {
			maxBytesReached = true
			break
		}
	}

	message := "No lines read from file."
	if read > 0 {
		message = fmt.Sprintf("%d lines read from file starting from line %d.", read, offset)
	}
	switch {
	case maxLinesReached:
		message += fmt.Sprintf(" Max %d lines reached.", readMaxLines)
	case maxBytesReached:
		message += fmt.Sprintf(" Max %d bytes reached.", readMaxBytes)
	case read < limit:
		message += " End of file reached."
	}
	if len(truncatedLines) > 0 {
		message += fmt.Sprintf(" Lines [%s] were truncated.", strings.Join(truncatedLines, ", "))
	}

	result := success(out.String(), message)
	result.Truncated = len(truncatedLines) > 0 || maxLinesReached || maxBytesReached
	return result, nil
}

// truncateLine cuts a line longer than maxLen runes to maxLen-3 runes plus
// "...", keeping its line terminator.
func truncateLine(line string, maxLen int) (string, bool) {
	body := strings.TrimRight(line, "\r\n")
	if utf8.RuneCountInString(body) <= maxLen {
		return line, false
	}
	term := line[len(body):]
	runes := []rune(body)
	return string(runes[:maxLen-3]) + "..." + term, true
}
