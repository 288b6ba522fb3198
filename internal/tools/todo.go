// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/agenttools/internal/session"
)

// =============================================================================
// THINK EXECUTOR
// =============================================================================

func newThinkTool() *Tool {
	return &Tool{
		Name: "think",
		Description: `Use this tool to think about something. It does not obtain new
information or change anything; it only logs the thought. Use it when complex
reasoning or some cache memory is needed.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "thought",
					Type:        "string",
					Required:    true,
					Description: "A thought to think about.",
				},
			},
		},
		Group:     GroupAgent,
		RiskLevel: RiskLow,
		Executor:  &ThinkExecutor{},
	}
}

// ThinkExecutor implements think.
type ThinkExecutor struct{}

// Execute does nothing with the thought.
func (e *ThinkExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	return success("", "Thought logged"), nil
}

// =============================================================================
// SET TODO LIST EXECUTOR
// =============================================================================

func newSetTodoListTool(sess *session.Session) *Tool {
	return &Tool{
		Name: "set_todo_list",
		Description: `Replace the todo list used to track progress on multi-step work.

Each call replaces the whole list. Status is one of pending, in_progress or done.
An empty list clears it.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "todos",
					Type:        "array",
					Required:    true,
					Description: "The updated todo list: objects with title and status.",
				},
			},
		},
		Group:     GroupAgent,
		RiskLevel: RiskLow,
		Executor:  &TodoExecutor{sess: sess},
	}
}

// TodoExecutor implements set_todo_list.
type TodoExecutor struct {
	sess *session.Session
}

var todoIcons = map[session.TodoStatus]string{
	session.TodoPending:    "[ ]",
	session.TodoInProgress: "[~]",
	session.TodoDone:       "[x]",
}

// Execute validates and stores the list.
func (e *TodoExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	raw, _ := params["todos"].([]interface{})

	todos := make([]session.Todo, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return failure("Todo %d must be an object with title and status.", i+1), nil
		}
		title := strings.TrimSpace(getStringParam(m, "title", ""))
		if title == "" {
			return failure("Todo %d has an empty title.", i+1), nil
		}
		status := session.TodoStatus(getStringParam(m, "status", string(session.TodoPending)))
		if !status.Valid() {
			return failure("Todo %d has invalid status `%s`. Status must be pending, in_progress or done.", i+1, status), nil
		}
		todos = append(todos, session.Todo{Title: title, Status: status})
	}

	e.sess.SetTodos(todos)
	if len(todos) == 0 {
		return success("", "Todo list cleared"), nil
	}

	var sb strings.Builder
	sb.WriteString("Todo list updated:\n")
	for _, t := range todos {
		fmt.Fprintf(&sb, "  %s %s\n", todoIcons[t.Status], t.Title)
	}
	return success(sb.String(), "Todo list updated"), nil
}
