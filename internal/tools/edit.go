// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/agenttools/internal/diff"
	"github.com/jeranaias/agenttools/internal/pathguard"
	"github.com/jeranaias/agenttools/internal/session"
	"github.com/jeranaias/agenttools/internal/util"
)

// previewLines caps the diff shown in an approval prompt.
const previewLines = 40

// Edit is one replacement applied by str_replace_file.
type Edit struct {
	Old        string
	New        string
	ReplaceAll bool
}

func newStrReplaceFileTool(sess *session.Session) *Tool {
	return &Tool{
		Name: "str_replace_file",
		Description: `Replace specific strings within a file.

Only use this tool on text files. Multi-line strings are supported. Give a
single edit or a list of edits; they are applied in order. Prefer this tool
over write_file and shell sed. This tool requires approval before execution.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "path",
					Type:        "string",
					Required:    true,
					Description: "The path to the file to edit. Absolute paths are required when editing files outside the working directory.",
				},
				{
					Name:        "edit",
					Type:        "any",
					Required:    true,
					Description: "An edit object {old, new, replace_all} or a list of them.",
				},
			},
		},
		Group:         GroupFile,
		RiskLevel:     RiskHigh,
		NeedsApproval: true,
		Executor:      &EditExecutor{sess: sess},
	}
}

// EditExecutor implements str_replace_file.
type EditExecutor struct {
	sess *session.Session
}

// Execute applies the edits in memory, asks for approval with a diff
// preview, then writes the file.
func (e *EditExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	path := getStringParam(params, "path", "")
	if path == "" {
		return failure("File path cannot be empty."), nil
	}

	edits, err := parseEdits(params["edit"])
	if err != nil {
		return failure("%v", err), nil
	}

	resolved, err := e.sess.Resolve(path)
	if err != nil {
		return fromError(err), nil
	}
	if err := pathguard.RequireFile(resolved); err != nil {
		return fromError(err), nil
	}

	data, err := os.ReadFile(resolved.Path)
	if err != nil {
		return failure("Failed to edit. Error: %v", err), nil
	}
	original := string(data)
	updated, replacements := applyEdits(original, edits)
	if updated == original {
		return failure("No replacements were made. The old string was not found in the file."), nil
	}

	d := diff.ComputeDiff(resolved.Path, original, updated)
	description := fmt.Sprintf("Edit file `%s` with %d edit(s) (%s)\n\n%s",
		resolved.Path, len(edits), d.Summary(), diff.Preview(d, previewLines))
	if res, ok := requestApproval(ctx, e.sess, "str_replace_file", editAction(resolved), description); !ok {
		return res, nil
	}

	perm, err := util.FileModeOr(resolved.Path, 0644)
	if err != nil {
		return failure("Failed to edit. Error: %v", err), nil
	}
	if err := util.AtomicWriteFile(resolved.Path, []byte(updated), perm); err != nil {
		return failure("Failed to edit. Error: %v", err), nil
	}

	e.sess.Logger().Info("file edited", "path", resolved.Path, "edits", len(edits), "replacements", replacements)
	return success("", fmt.Sprintf("File successfully edited. Applied %d edit(s) with %d total replacement(s).", len(edits), replacements)), nil
}

// applyEdits applies edits in order and counts the replacements made.
func applyEdits(content string, edits []Edit) (string, int) {
	total := 0
	for _, ed := range edits {
		if ed.ReplaceAll {
			total += strings.Count(content, ed.Old)
			content = strings.ReplaceAll(content, ed.Old, ed.New)
			continue
		}
		if strings.Contains(content, ed.Old) {
			total++
			content = strings.Replace(content, ed.Old, ed.New, 1)
		}
	}
	return content, total
}

// parseEdits accepts a single edit object or a list of them.
func parseEdits(raw interface{}) ([]Edit, error) {
	var items []interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		items = []interface{}{v}
	case []interface{}:
		items = v
	default:
		return nil, fmt.Errorf("edit must be an object or a list of objects")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("at least one edit is required")
	}

	edits := make([]Edit, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("edit %d must be an object", i+1)
		}
		old, ok := m["old"].(string)
		if !ok || old == "" {
			return nil, fmt.Errorf("edit %d: old must be a non-empty string", i+1)
		}
		newText, ok := m["new"].(string)
		if !ok {
			return nil, fmt.Errorf("edit %d: new must be a string", i+1)
		}
		edits = append(edits, Edit{
			Old:        old,
			New:        newText,
			ReplaceAll: getBoolParam(m, "replace_all", false),
		})
	}
	return edits, nil
}
