// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for scripted callers.
//
// With --json every command prints one JSONResponse on stdout. Human
// readable messages and prompts go to stderr.

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the response envelope shared by all commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the RFC 3339 time the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error JSON response that still carries
// data, such as the result of a failed tool call.
func NewJSONErrorResponse(command string, data interface{}, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Data:      data,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response with indentation.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// ToolCallData is the data of a tool call response.
type ToolCallData struct {
	Tool       string `json:"tool"`
	Success    bool   `json:"success"`
	Rejected   bool   `json:"rejected"`
	Truncated  bool   `json:"truncated"`
	Output     string `json:"output"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Rendered   string `json:"rendered"`
	DurationMs int64  `json:"duration_ms"`
}

// ToolInfo describes one tool in a listing.
type ToolInfo struct {
	Name          string          `json:"name"`
	Group         string          `json:"group"`
	Risk          string          `json:"risk"`
	NeedsApproval bool            `json:"needs_approval"`
	Description   string          `json:"description"`
	Parameters    []ParameterInfo `json:"parameters,omitempty"`
}

// ParameterInfo describes one tool parameter.
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// RunData is the data of a run response.
type RunData struct {
	Argv       []string `json:"argv"`
	ExitCode   int      `json:"exit_code"`
	Output     string   `json:"output"`
	DurationMs int64    `json:"duration_ms"`
}

// ResolveData is the data of a resolve response.
type ResolveData struct {
	Input       string `json:"input"`
	Path        string `json:"path"`
	OutsideRoot bool   `json:"outside_root"`
	Exists      bool   `json:"exists"`
}
