// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jeranaias/agenttools/internal/approval"
	"github.com/jeranaias/agenttools/internal/output"
	"github.com/jeranaias/agenttools/internal/session"
	"github.com/jeranaias/agenttools/internal/util"
)

// =============================================================================
// RISK LEVELS
// =============================================================================

// RiskLevel indicates how dangerous a tool operation is.
type RiskLevel int

const (
	// RiskLow - Read-only operations, no side effects
	RiskLow RiskLevel = iota

	// RiskMedium - Network access, no local side effects
	RiskMedium

	// RiskHigh - Modifies files
	RiskHigh

	// RiskCritical - Runs arbitrary commands
	RiskCritical
)

// String returns the string representation of a risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// =============================================================================
// TOOL GROUPS
// =============================================================================

// Group classifies a tool for registry listings.
type Group int

const (
	GroupFile Group = iota
	GroupSystem
	GroupWeb
	GroupAgent
)

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupFile:
		return "file"
	case GroupSystem:
		return "system"
	case GroupWeb:
		return "web"
	case GroupAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool represents an executable tool.
type Tool struct {
	// Name is the tool identifier (e.g., "read_file", "shell")
	Name string

	// Description explains what the tool does
	Description string

	// Schema defines the tool's parameters
	Schema Schema

	// Group classifies the tool
	Group Group

	// RiskLevel indicates how dangerous the tool is
	RiskLevel RiskLevel

	// NeedsApproval is true when the tool consults the approval gate
	// before acting.
	NeedsApproval bool

	// Executor handles the actual execution
	Executor ToolExecutor
}

// ShortDescription returns the first line of Description.
func (t *Tool) ShortDescription() string {
	return util.FirstLine(t.Description)
}

// Schema defines a tool's parameters.
type Schema struct {
	Parameters []Parameter
}

// Parameter defines a single tool parameter.
type Parameter struct {
	// Name of the parameter
	Name string

	// Type is "string", "integer", "number", "boolean", "array" or "object"
	Type string

	// Required indicates if the parameter must be provided
	Required bool

	// Description explains the parameter
	Description string

	// Default is the default value if not provided
	Default interface{}

	// Enum contains allowed values for string parameters
	Enum []string

	// Minimum and Maximum bound numeric parameters when set
	Minimum *float64
	Maximum *float64
}

func bound(v float64) *float64 { return &v }

// =============================================================================
// TOOL EXECUTOR INTERFACE
// =============================================================================

// ToolExecutor is the interface for individual tool execution. Executors
// report tool-level failures in the Result; a returned error is reserved
// for failures outside the tool's contract.
type ToolExecutor interface {
	Execute(ctx context.Context, params map[string]interface{}) (Result, error)
}

// Result holds the outcome of a tool execution.
type Result struct {
	// Success indicates if the tool executed successfully
	Success bool

	// Output is the tool's output
	Output string

	// Message is a short note for the agent about the output
	Message string

	// Error is the error message (for failed execution)
	Error string

	// Rejected is true when a human declined the side effect
	Rejected bool

	// Truncated indicates output was bounded
	Truncated bool

	// Duration is how long execution took
	Duration time.Duration
}

// String renders the result as the text handed back to the agent.
func (r Result) String() string {
	switch {
	case r.Rejected:
		return output.FormatRejection()
	case !r.Success:
		return output.FormatError(r.Error)
	default:
		return output.FormatSuccess(r.Output, r.Message)
	}
}

// Outcome names the result for metrics and logs.
func (r Result) Outcome() string {
	switch {
	case r.Rejected:
		return "rejected"
	case !r.Success:
		return "error"
	default:
		return "ok"
	}
}

func success(out, message string) Result {
	return Result{Success: true, Output: out, Message: message}
}

func failure(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

func rejection() Result {
	return Result{Rejected: true, Error: approval.ErrRejected.Error()}
}

// fromError renders an error from the safety core. Path errors already
// carry agent-facing text.
func fromError(err error) Result {
	if errors.Is(err, approval.ErrRejected) {
		return rejection()
	}
	return Result{Error: err.Error()}
}

// requestApproval asks the session gate. It returns the result to hand
// back and false when the tool must stop.
func requestApproval(ctx context.Context, sess *session.Session, tool, action, description string) (Result, bool) {
	ok, err := sess.RequestApproval(ctx, tool, action, description)
	if err != nil {
		return failure("Approval could not be obtained: %v. The operation was not performed.", err), false
	}
	if !ok {
		return rejection(), false
	}
	return Result{}, true
}

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds the tools bound to one session.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates a registry with every built-in tool bound to sess.
func NewRegistry(sess *session.Session) *Registry {
	r := &Registry{tools: make(map[string]*Tool)}
	r.RegisterBuiltins(sess)
	return r
}

// RegisterBuiltins registers all built-in tools.
func (r *Registry) RegisterBuiltins(sess *session.Session) {
	web := newWebClient(sess)

	r.Register(newReadFileTool(sess))
	r.Register(newReadMediaFileTool(sess))
	r.Register(newWriteFileTool(sess))
	r.Register(newStrReplaceFileTool(sess))
	r.Register(newGlobTool(sess))
	r.Register(newGrepTool(sess))
	r.Register(newShellTool(sess))
	r.Register(newSearchWebTool(sess, web))
	r.Register(newFetchURLTool(sess, web))
	r.Register(newThinkTool())
	r.Register(newSetTodoListTool(sess))
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(tool *Tool) {
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// All returns every tool sorted by name.
func (r *Registry) All() []*Tool {
	return r.filter(func(*Tool) bool { return true })
}

// Safe returns the tools that never ask for approval.
func (r *Registry) Safe() []*Tool {
	return r.filter(func(t *Tool) bool { return !t.NeedsApproval })
}

// File returns the filesystem tools.
func (r *Registry) File() []*Tool {
	return r.filter(func(t *Tool) bool { return t.Group == GroupFile })
}

// Web returns the network tools.
func (r *Registry) Web() []*Tool {
	return r.filter(func(t *Tool) bool { return t.Group == GroupWeb })
}

func (r *Registry) filter(keep func(*Tool) bool) []*Tool {
	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		if keep(tool) {
			result = append(result, tool)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// =============================================================================
// TOOL CALLS AND PARAMETERS
// =============================================================================

// ToolCall represents a tool invocation.
type ToolCall struct {
	Name   string
	Params map[string]interface{}
}

// getStringParam extracts a string parameter with a default value.
func getStringParam(params map[string]interface{}, name string, defaultVal string) string {
	if val, ok := params[name]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// getIntParam extracts an integer parameter with a default value.
func getIntParam(params map[string]interface{}, name string, defaultVal int) int {
	if val, ok := params[name]; ok {
		if n, ok := toFloat(val); ok {
			return int(n)
		}
	}
	return defaultVal
}

// getOptionalIntParam reports whether an integer parameter was supplied.
func getOptionalIntParam(params map[string]interface{}, name string) (int, bool) {
	if val, ok := params[name]; ok && val != nil {
		if n, ok := toFloat(val); ok {
			return int(n), true
		}
	}
	return 0, false
}

// getBoolParam extracts a boolean parameter with a default value.
func getBoolParam(params map[string]interface{}, name string, defaultVal bool) bool {
	if val, ok := params[name]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultVal
}

func toFloat(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}
