// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
)

// =============================================================================
// EXECUTION RECORD
// =============================================================================

// ExecutionRecord tracks the result of a tool execution for audit purposes.
type ExecutionRecord struct {
	// ID uniquely identifies the call
	ID string

	// ToolName is the name of the executed tool
	ToolName string

	// Params are the parameters passed to the tool
	Params map[string]interface{}

	// Result is the outcome of the execution
	Result Result

	// Timestamp is when the execution started
	Timestamp time.Time

	// Duration is how long the execution took
	Duration time.Duration
}

// Observer receives one event per tool call. Outcome is "ok", "error",
// "rejected", "invalid" or "unknown".
type Observer interface {
	ObserveToolCall(tool, outcome string, d time.Duration)
}

// =============================================================================
// EXECUTOR
// =============================================================================

const defaultMaxHistory = 1000

// Executor runs tool calls from a registry and keeps an audit history.
type Executor struct {
	registry   *Registry
	logger     *slog.Logger
	observer   Observer
	maxHistory int

	mu      sync.Mutex
	history []ExecutionRecord
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger. Defaults to slog.Default().
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithExecutorObserver reports every call to o.
func WithExecutorObserver(o Observer) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

// WithMaxHistory bounds the number of retained records.
func WithMaxHistory(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxHistory = n
		}
	}
}

// NewExecutor creates a new tool executor with the given registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:   registry,
		maxHistory: defaultMaxHistory,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Registry returns the tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// History returns a copy of the execution history, oldest first.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]ExecutionRecord, len(e.history))
	copy(result, e.history)
	return result
}

// =============================================================================
// EXECUTION
// =============================================================================

// Execute validates call against the tool schema, runs it and records the
// result. It never returns a Go error; every failure is a Result.
func (e *Executor) Execute(ctx context.Context, call ToolCall) Result {
	start := time.Now()
	record := ExecutionRecord{
		ID:        uuid.NewString(),
		ToolName:  call.Name,
		Params:    call.Params,
		Timestamp: start,
	}
	logger := e.logger.With("tool", call.Name, "call_id", record.ID)

	finish := func(result Result, outcome string) Result {
		result.Duration = time.Since(start)
		record.Duration = result.Duration
		record.Result = result
		e.addToHistory(record)
		if e.observer != nil {
			e.observer.ObserveToolCall(call.Name, outcome, result.Duration)
		}
		logger.Debug("tool call finished", "outcome", outcome, "duration", result.Duration)
		return result
	}

	tool := e.registry.Get(call.Name)
	if tool == nil {
		return finish(failure("Unknown tool: %s", call.Name), "unknown")
	}

	if err := ValidateToolArgs(&tool.Schema, call.Params); err != nil {
		return finish(failure("Invalid arguments for %s: %v", call.Name, err), "invalid")
	}
	params := make(map[string]interface{}, len(call.Params))
	for k, v := range call.Params {
		params[k] = v
	}
	applyDefaults(&tool.Schema, params)

	logger.Debug("tool call started")
	result, err := tool.Executor.Execute(ctx, params)
	if err != nil {
		logger.Warn("tool execution error", "error", err)
		result = failure("Failed to run %s. Error: %v", call.Name, err)
	}
	return finish(result, result.Outcome())
}

// ExecuteJSON decodes raw JSON arguments, repairing them when needed, and
// executes the named tool.
func (e *Executor) ExecuteJSON(ctx context.Context, name, rawArgs string) Result {
	params, err := ParseArguments(rawArgs)
	if err != nil {
		start := time.Now()
		result := failure("Invalid arguments for %s: %v", name, err)
		e.addToHistory(ExecutionRecord{ID: uuid.NewString(), ToolName: name, Result: result, Timestamp: start})
		if e.observer != nil {
			e.observer.ObserveToolCall(name, "invalid", 0)
		}
		return result
	}
	return e.Execute(ctx, ToolCall{Name: name, Params: params})
}

// ParseArguments decodes a JSON object of tool arguments. Malformed JSON,
// as models sometimes produce, is repaired before giving up. An empty
// string is an empty object.
func ParseArguments(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		if args == nil {
			args = map[string]interface{}{}
		}
		return args, nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// addToHistory adds an execution record to the history.
func (e *Executor) addToHistory(record ExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history) >= e.maxHistory {
		e.history = e.history[len(e.history)-e.maxHistory+1:]
	}
	e.history = append(e.history, record)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Param + ": " + e.Message
}

// ValidateToolArgs validates arguments against a schema: required
// parameters, types, enums and numeric bounds. Unknown arguments are
// ignored.
func ValidateToolArgs(schema *Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	for _, param := range schema.Parameters {
		val, exists := args[param.Name]

		if param.Required && (!exists || val == nil) {
			return &ValidationError{Param: param.Name, Message: "missing required argument"}
		}
		if !exists || val == nil {
			continue
		}

		if err := validateArgType(param, val); err != nil {
			return err
		}
		if err := validateEnum(param, val); err != nil {
			return err
		}
		if err := validateNumericBounds(param, val); err != nil {
			return err
		}
	}
	return nil
}

// validateArgType validates the type of an argument.
func validateArgType(param Parameter, val interface{}) error {
	ok := true
	switch param.Type {
	case "string":
		_, ok = val.(string)
	case "integer":
		var f float64
		f, ok = toFloat(val)
		ok = ok && isIntegral(f)
	case "number":
		_, ok = toFloat(val)
	case "boolean":
		_, ok = val.(bool)
	case "array":
		_, ok = val.([]interface{})
	case "object":
		_, ok = val.(map[string]interface{})
	}
	if !ok {
		return &ValidationError{Param: param.Name, Message: "expected " + param.Type}
	}
	return nil
}

func validateEnum(param Parameter, val interface{}) error {
	if len(param.Enum) == 0 {
		return nil
	}
	s, _ := val.(string)
	for _, allowed := range param.Enum {
		if s == allowed {
			return nil
		}
	}
	return &ValidationError{
		Param:   param.Name,
		Message: fmt.Sprintf("must be one of %s", strings.Join(param.Enum, ", ")),
	}
}

// validateNumericBounds checks a numeric value against the parameter bounds.
func validateNumericBounds(param Parameter, val interface{}) error {
	n, ok := toFloat(val)
	if !ok {
		return nil
	}
	if param.Minimum != nil && n < *param.Minimum {
		return &ValidationError{Param: param.Name, Message: fmt.Sprintf("must be at least %v", *param.Minimum)}
	}
	if param.Maximum != nil && n > *param.Maximum {
		return &ValidationError{Param: param.Name, Message: fmt.Sprintf("must be at most %v", *param.Maximum)}
	}
	return nil
}

func applyDefaults(schema *Schema, args map[string]interface{}) {
	for _, param := range schema.Parameters {
		if _, exists := args[param.Name]; !exists && param.Default != nil {
			args[param.Name] = param.Default
		}
	}
}

// =============================================================================
// EXECUTION STATISTICS
// =============================================================================

// ExecutionStats provides statistics about tool executions.
type ExecutionStats struct {
	TotalExecutions int
	Successful      int
	Failed          int
	Rejected        int
	TotalDuration   time.Duration
	AvgDuration     time.Duration
}

// Stats returns statistics about the execution history.
func (e *Executor) Stats() ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ExecutionStats{TotalExecutions: len(e.history)}
	for _, record := range e.history {
		switch {
		case record.Result.Rejected:
			stats.Rejected++
		case record.Result.Success:
			stats.Successful++
		default:
			stats.Failed++
		}
		stats.TotalDuration += record.Duration
	}
	if stats.TotalExecutions > 0 {
		stats.AvgDuration = stats.TotalDuration / time.Duration(stats.TotalExecutions)
	}
	return stats
}
