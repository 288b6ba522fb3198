// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/agenttools/internal/approval"
	"github.com/jeranaias/agenttools/internal/config"
	"github.com/jeranaias/agenttools/internal/output"
	"github.com/jeranaias/agenttools/internal/pathguard"
	"github.com/jeranaias/agenttools/internal/process"
	"github.com/jeranaias/agenttools/internal/provision"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is the explicit context for one agent session. The work root is
// fixed at construction; everything else is read-only after New except the
// approval gate's auto-approved set and the todo list.
type Session struct {
	id        string
	startTime time.Time
	workRoot  string

	gate        *approval.Gate
	provisioner *provision.Provisioner
	runner      *process.Runner
	limits      output.Limits
	web         config.WebConfig
	shell       config.ShellConfig
	logger      *slog.Logger

	mu    sync.Mutex
	todos []Todo
}

// Option configures a Session.
type Option func(*Session)

// WithProvisioner sets the helper binary provisioner.
func WithProvisioner(p *provision.Provisioner) Option {
	return func(s *Session) { s.provisioner = p }
}

// WithRunner sets the process runner.
func WithRunner(r *process.Runner) Option {
	return func(s *Session) { s.runner = r }
}

// WithLimits sets the output limits applied to tool output.
func WithLimits(l output.Limits) Option {
	return func(s *Session) { s.limits = l }
}

// WithWeb sets the outbound HTTP configuration, including the search and
// fetch services.
func WithWeb(w config.WebConfig) Option {
	return func(s *Session) { s.web = w }
}

// WithShell sets the shell timeout bounds.
func WithShell(c config.ShellConfig) Option {
	return func(s *Session) { s.shell = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// New creates a session rooted at workRoot, which must be an existing
// directory. The root is canonicalized once here.
func New(workRoot string, gate *approval.Gate, opts ...Option) (*Session, error) {
	if gate == nil {
		return nil, fmt.Errorf("session requires an approval gate")
	}
	expanded, err := pathguard.ExpandHome(workRoot)
	if err != nil {
		return nil, err
	}
	canonical, err := pathguard.Canonicalize(expanded)
	if err != nil {
		return nil, fmt.Errorf("work root: %w", err)
	}
	root := pathguard.Resolved{Path: canonical, Original: workRoot}
	if err := pathguard.RequireDir(root); err != nil {
		return nil, fmt.Errorf("work root: %w", err)
	}

	defaults := config.Default()
	s := &Session{
		id:        uuid.NewString(),
		startTime: time.Now(),
		workRoot:  root.Path,
		gate:      gate,
		limits:    output.DefaultLimits(),
		web:       defaults.Web,
		shell:     defaults.Shell,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.runner == nil {
		s.runner = &process.Runner{Logger: s.logger}
	}
	if s.provisioner == nil {
		dir, err := provision.DefaultInstallDir()
		if err != nil {
			return nil, err
		}
		s.provisioner = provision.New(dir, provision.WithLogger(s.logger))
	}
	s.logger = s.logger.With("session", s.id)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// StartTime returns when the session was created.
func (s *Session) StartTime() time.Time { return s.startTime }

// WorkRoot returns the canonical work root.
func (s *Session) WorkRoot() string { return s.workRoot }

// Gate returns the approval gate.
func (s *Session) Gate() *approval.Gate { return s.gate }

// Provisioner returns the helper binary provisioner.
func (s *Session) Provisioner() *provision.Provisioner { return s.provisioner }

// Runner returns the process runner.
func (s *Session) Runner() *process.Runner { return s.runner }

// Limits returns the output limits.
func (s *Session) Limits() output.Limits { return s.limits }

// Web returns the outbound HTTP configuration.
func (s *Session) Web() config.WebConfig { return s.web }

// Shell returns the shell timeout bounds.
func (s *Session) Shell() config.ShellConfig { return s.shell }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Resolve resolves a tool-supplied path against the work root.
func (s *Session) Resolve(path string) (pathguard.Resolved, error) {
	return pathguard.Resolve(path, s.workRoot)
}

// RequestApproval asks the gate whether tool may perform action. A false
// result with a nil error is a plain rejection.
func (s *Session) RequestApproval(ctx context.Context, tool, action, description string) (bool, error) {
	d, err := s.gate.Decide(ctx, approval.Request{Tool: tool, Action: action, Description: description})
	return d == approval.Approved, err
}

// =============================================================================
// TODO LIST
// =============================================================================

// TodoStatus is the state of one todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoDone       TodoStatus = "done"
)

// Valid reports whether s is a known status.
func (s TodoStatus) Valid() bool {
	switch s {
	case TodoPending, TodoInProgress, TodoDone:
		return true
	}
	return false
}

// Todo is one entry of the agent's todo list.
type Todo struct {
	Title  string     `json:"title"`
	Status TodoStatus `json:"status"`
}

// SetTodos replaces the whole todo list.
func (s *Session) SetTodos(todos []Todo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = append([]Todo(nil), todos...)
}

// Todos returns a copy of the todo list.
func (s *Session) Todos() []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Todo(nil), s.todos...)
}
