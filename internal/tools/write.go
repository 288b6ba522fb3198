// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/jeranaias/agenttools/internal/pathguard"
	"github.com/jeranaias/agenttools/internal/session"
	"github.com/jeranaias/agenttools/internal/util"
)

// Approval actions for file mutations. Auto-approval matches on these.
const (
	ActionEditFile        = "edit file"
	ActionEditFileOutside = "edit file outside working directory"
)

const (
	writeModeOverwrite = "overwrite"
	writeModeAppend    = "append"
)

// editAction picks the approval action for a mutation of r.
func editAction(r pathguard.Resolved) string {
	if r.OutsideRoot {
		return ActionEditFileOutside
	}
	return ActionEditFile
}

// =============================================================================
// WRITE EXECUTOR
// =============================================================================

func newWriteFileTool(sess *session.Session) *Tool {
	return &Tool{
		Name: "write_file",
		Description: `Write content to a file.

Mode overwrite (the default) replaces the whole file; append adds to the end of
an existing file. For long content, write the first part with overwrite and the
rest with append. This tool requires approval before execution.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "path",
					Type:        "string",
					Required:    true,
					Description: "The path to the file to write. Absolute paths are required when writing files outside the working directory.",
				},
				{
					Name:        "content",
					Type:        "string",
					Required:    true,
					Description: "The content to write to the file.",
				},
				{
					Name:        "mode",
					Type:        "string",
					Description: "`overwrite` replaces the whole file, `append` appends to the end of an existing file.",
					Default:     writeModeOverwrite,
				},
			},
		},
		Group:         GroupFile,
		RiskLevel:     RiskHigh,
		NeedsApproval: true,
		Executor:      &WriteExecutor{sess: sess},
	}
}

// WriteExecutor implements write_file.
type WriteExecutor struct {
	sess *session.Session
}

// Execute writes or appends to a file after approval.
func (e *WriteExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	path := getStringParam(params, "path", "")
	content := getStringParam(params, "content", "")
	mode := getStringParam(params, "mode", writeModeOverwrite)

	if path == "" {
		return failure("File path cannot be empty."), nil
	}

	resolved, err := e.sess.Resolve(path)
	if err != nil {
		return fromError(err), nil
	}
	if err := pathguard.RequireParentDir(resolved); err != nil {
		return fromError(err), nil
	}
	if mode != writeModeOverwrite && mode != writeModeAppend {
		return failure("Invalid write mode: `%s`. Mode must be either `overwrite` or `append`.", mode), nil
	}

	description := fmt.Sprintf("Write file `%s` (mode: %s)", resolved.Path, mode)
	if res, ok := requestApproval(ctx, e.sess, "write_file", editAction(resolved), description); !ok {
		return res, nil
	}

	if err := writeFile(resolved.Path, content, mode); err != nil {
		return failure("Failed to write to %s. Error: %v", path, err), nil
	}

	info, err := os.Stat(resolved.Path)
	if err != nil {
		return failure("Failed to write to %s. Error: %v", path, err), nil
	}
	verb := "overwritten"
	if mode == writeModeAppend {
		verb = "appended to"
	}
	e.sess.Logger().Info("file written", "path", resolved.Path, "mode", mode, "size", info.Size())
	return success("", fmt.Sprintf("File successfully %s. Current size: %d bytes.", verb, info.Size())), nil
}

// writeFile replaces path atomically, keeping an existing file's mode, or
// appends to it.
func writeFile(path, content, mode string) error {
	if mode == writeModeAppend {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return err
		}
		if _, err := f.WriteString(content); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	perm, err := util.FileModeOr(path, 0644)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, []byte(content), perm)
}
