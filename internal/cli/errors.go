// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for CLI commands.
//
// Commands return errors and never exit themselves. Execute maps the
// returned error to an exit code with GetExitCode.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/agenttools/internal/approval"
	"github.com/jeranaias/agenttools/internal/config"
	"github.com/jeranaias/agenttools/internal/pathguard"
	"github.com/jeranaias/agenttools/internal/process"
	"github.com/jeranaias/agenttools/internal/provision"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitRejectedError indicates the user declined a side effect
	ExitRejectedError = 4
	// ExitNetworkError indicates a download or network failure
	ExitNetworkError = 5
	// ExitNotFoundError indicates a path or binary was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates a process was killed by its timeout
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "ensure", "config")
	Action  string // Action being performed (e.g., "set", "install")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// ToolError reports a tool call that did not succeed. Its result has
// already been printed, so Execute does not display it again.
type ToolError struct {
	Tool     string
	Rejected bool
	Message  string

	exit *process.ExitError
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error {
	switch {
	case e.Rejected:
		return approval.ErrRejected
	case e.exit != nil:
		return e.exit
	}
	return nil
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewValidationErrorWithExample creates a validation error with an example.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Example: example}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err in the human or JSON format.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		DisplayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// DisplayErrorJSON writes err as a JSON object with a structured type.
func DisplayErrorJSON(w io.Writer, err error) {
	output := map[string]interface{}{
		"error":     err.Error(),
		"success":   false,
		"exit_code": GetExitCode(err),
	}

	var (
		cmdErr  *CommandError
		valErr  *ValidationError
		toolErr *ToolError
		pathErr *pathguard.PathError
		provErr *provision.Error
		exitErr *process.ExitError
		cfgErrs config.ValidateErrors
	)
	switch {
	case errors.As(err, &toolErr):
		output["error_type"] = "tool_error"
		output["tool"] = toolErr.Tool
		output["rejected"] = toolErr.Rejected
	case errors.As(err, &cmdErr):
		output["error_type"] = "command_error"
		output["command"] = cmdErr.Command
		output["action"] = cmdErr.Action
		output["reason"] = cmdErr.Reason
	case errors.As(err, &valErr):
		output["error_type"] = "validation_error"
		output["field"] = valErr.Field
		output["value"] = valErr.Value
	case errors.As(err, &cfgErrs):
		output["error_type"] = "config_error"
	case errors.As(err, &pathErr):
		output["error_type"] = "path_error"
		output["path"] = pathErr.Path
	case errors.As(err, &provErr):
		output["error_type"] = "provision_error"
		output["binary"] = provErr.Binary
	case errors.As(err, &exitErr):
		output["error_type"] = "process_error"
		output["child_exit_code"] = exitErr.ExitCode
	default:
		output["error_type"] = "generic_error"
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(output)
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the exit code for an error. A child process exit
// code passes through unchanged.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *process.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode > 0 {
		return exitErr.ExitCode
	}

	var (
		valErr  *ValidationError
		cmdErr  *CommandError
		cfgErrs config.ValidateErrors
	)
	switch {
	case errors.As(err, &valErr):
		return ExitUsageError
	case errors.As(err, &cfgErrs), errors.As(err, &cmdErr) && cmdErr.Command == "config":
		return ExitConfigError
	case errors.Is(err, approval.ErrRejected):
		return ExitRejectedError
	case errors.Is(err, process.ErrTimeout):
		return ExitTimeoutError
	case errors.Is(err, pathguard.ErrNotFound), errors.Is(err, provision.ErrUnknownBinary):
		return ExitNotFoundError
	case errors.Is(err, provision.ErrDownloadFailed), errors.Is(err, provision.ErrUnsupportedPlatform):
		return ExitNetworkError
	}
	return ExitGeneralError
}
