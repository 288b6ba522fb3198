// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/agenttools/internal/process"
	"github.com/jeranaias/agenttools/internal/session"
)

// ActionRunCommand is the approval action for shell commands.
const ActionRunCommand = "run command"

// =============================================================================
// SHELL EXECUTOR
// =============================================================================

func newShellTool(sess *session.Session) *Tool {
	limits := sess.Shell()
	return &Tool{
		Name: "shell",
		Description: fmt.Sprintf(`Execute a shell command with the platform shell (%s).

Stdout and stderr are combined and returned; long output is truncated. A failing
command reports its exit code. Each call runs in a fresh shell started in the
working directory, so variables and cd do not persist. Set timeout for
long-running commands. This tool requires approval before execution.`, process.ShellName()),
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "command",
					Type:        "string",
					Required:    true,
					Description: "The shell command to execute.",
				},
				{
					Name:        "timeout",
					Type:        "integer",
					Description: fmt.Sprintf("Timeout in seconds. The command is killed when it runs longer. Max %d.", limits.MaxTimeoutSecs),
					Default:     limits.DefaultTimeoutSecs,
					Minimum:     bound(1),
					Maximum:     bound(float64(limits.MaxTimeoutSecs)),
				},
			},
		},
		Group:         GroupSystem,
		RiskLevel:     RiskCritical,
		NeedsApproval: true,
		Executor:      &ShellExecutor{sess: sess},
	}
}

// ShellExecutor implements shell.
type ShellExecutor struct {
	sess *session.Session
}

// Execute runs the command after approval.
func (e *ShellExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	command := getStringParam(params, "command", "")
	timeoutSecs := getIntParam(params, "timeout", e.sess.Shell().DefaultTimeoutSecs)

	if strings.TrimSpace(command) == "" {
		return failure("Command cannot be empty."), nil
	}

	if res, ok := requestApproval(ctx, e.sess, "shell", ActionRunCommand, describeCommand(command)); !ok {
		return res, nil
	}

	timeout := time.Duration(timeoutSecs) * time.Second
	res, err := e.sess.Runner().Shell(ctx, command, e.sess.WorkRoot(), timeout)
	out, truncated := e.sess.Limits().Bound(strings.ToValidUTF8(string(res.Output), "�"))
	suffix := ""
	if truncated {
		suffix = " Output was truncated."
	}

	var exitErr *process.ExitError
	switch {
	case err == nil:
		result := success(out, "Command executed successfully."+suffix)
		result.Truncated = truncated
		return result, nil
	case errors.Is(err, process.ErrTimeout):
		return failure("Command killed by timeout (%ds)", timeoutSecs), nil
	case errors.As(err, &exitErr):
		result := failure("Command failed with exit code: %d.%s\n\nOutput:\n%s", exitErr.ExitCode, suffix, out)
		result.Truncated = truncated
		return result, nil
	case out != "":
		result := failure("Failed to execute command. Error: %v%s\n\nOutput:\n%s", err, suffix, out)
		result.Truncated = truncated
		return result, nil
	default:
		return failure("Failed to execute command. Error: %v", err), nil
	}
}

// describeCommand builds the approval description. Commands that change
// under NFKC normalization get a warning showing the normalized form; the
// command itself runs unmodified.
func describeCommand(command string) string {
	description := fmt.Sprintf("Run command `%s`", command)
	if normalized := norm.NFKC.String(command); normalized != command {
		description += fmt.Sprintf("\n\nWarning: the command contains look-alike Unicode characters. Normalized form: `%s`", normalized)
	}
	return description
}
