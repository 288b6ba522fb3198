// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrRejected is returned by Gate.Require when a tool call was declined.
// Callers distinguish it from execution failures with errors.Is.
var ErrRejected = errors.New("tool call rejected by the user")

// Decision is the outcome of an approval request. It is computed fresh for
// every call and never cached.
type Decision int

const (
	Rejected Decision = iota
	Approved
)

func (d Decision) String() string {
	if d == Approved {
		return "approved"
	}
	return "rejected"
}

// Request describes a side-effecting tool call awaiting approval.
type Request struct {
	// Tool is the name of the requesting tool.
	Tool string
	// Action is the kind of side effect, such as "edit file" or
	// "run command". Auto-approval matches on it exactly.
	Action string
	// Description is shown to the human approver.
	Description string
}

// Observer receives every decision the gate makes.
type Observer interface {
	ObserveApproval(tool, action, decision, source string)
}

// =============================================================================
// GATE
// =============================================================================

// Gate evaluates approval requests for one session. It is safe for
// concurrent use.
type Gate struct {
	bypass   bool
	actions  *ActionSet
	policies []Policy
	logger   *slog.Logger
	observer Observer
}

// Option configures a Gate.
type Option func(*gateConfig)

type gateConfig struct {
	bypass   bool
	actions  []string
	callback Callback
	logger   *slog.Logger
	observer Observer
}

// WithBypass approves every request without asking.
func WithBypass(bypass bool) Option {
	return func(c *gateConfig) { c.bypass = bypass }
}

// WithAutoApproved seeds the set of action kinds approved without asking.
func WithAutoApproved(actions ...string) Option {
	return func(c *gateConfig) { c.actions = append(c.actions, actions...) }
}

// WithCallback sets the interactive callback consulted last.
func WithCallback(cb Callback) Option {
	return func(c *gateConfig) { c.callback = cb }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *gateConfig) { c.logger = logger }
}

// WithObserver reports decisions to o.
func WithObserver(o Observer) Option {
	return func(c *gateConfig) { c.observer = o }
}

// NewGate builds a gate. Without options it rejects everything.
func NewGate(opts ...Option) *Gate {
	var cfg gateConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	g := &Gate{
		bypass:   cfg.bypass,
		actions:  NewActionSet(cfg.actions...),
		logger:   cfg.logger,
		observer: cfg.observer,
	}
	if cfg.bypass {
		g.policies = append(g.policies, AlwaysApprove{})
	}
	g.policies = append(g.policies, PreApproved{Actions: g.actions})
	if cfg.callback != nil {
		g.policies = append(g.policies, Interactive{Callback: cfg.callback})
	}
	return g
}

// Decide returns the decision for req. A callback error yields Rejected
// together with the error.
func (g *Gate) Decide(ctx context.Context, req Request) (Decision, error) {
	for _, p := range g.policies {
		verdict, err := p.Evaluate(ctx, req)
		if err != nil {
			g.record(req, Rejected, p.Name())
			return Rejected, fmt.Errorf("approval via %s: %w", p.Name(), err)
		}
		switch verdict {
		case Approve:
			g.record(req, Approved, p.Name())
			return Approved, nil
		case Reject:
			g.record(req, Rejected, p.Name())
			return Rejected, nil
		}
	}
	g.record(req, Rejected, "default")
	return Rejected, nil
}

// Require returns nil when req is approved and ErrRejected when it is
// declined. Other errors mean the approval could not be obtained.
func (g *Gate) Require(ctx context.Context, req Request) error {
	d, err := g.Decide(ctx, req)
	if err != nil {
		return err
	}
	if d != Approved {
		return ErrRejected
	}
	return nil
}

// ApproveAction adds action to the auto-approved set for the rest of the
// session.
func (g *Gate) ApproveAction(action string) {
	if g.actions.add(action) {
		g.logger.Info("action auto-approved for session", "action", action)
	}
}

// AutoApproved reports whether action is in the auto-approved set.
func (g *Gate) AutoApproved(action string) bool {
	return g.actions.Contains(action)
}

// AutoApprovedActions lists the auto-approved action kinds in sorted order.
func (g *Gate) AutoApprovedActions() []string {
	return g.actions.List()
}

// Bypassed reports whether every request is approved without asking.
func (g *Gate) Bypassed() bool {
	return g.bypass
}

func (g *Gate) record(req Request, d Decision, source string) {
	g.logger.Debug("approval decision",
		"tool", req.Tool,
		"action", req.Action,
		"decision", d.String(),
		"source", source)
	if g.observer != nil {
		g.observer.ObserveApproval(req.Tool, req.Action, d.String(), source)
	}
}
