// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package approval

import "context"

// Verdict is a single policy's answer.
type Verdict int

const (
	// Abstain defers to the next policy in the chain.
	Abstain Verdict = iota
	Approve
	Reject
)

// Policy is one way of approving a request.
type Policy interface {
	Name() string
	Evaluate(ctx context.Context, req Request) (Verdict, error)
}

// Callback asks a human about req. It may block until the user answers and
// should return promptly once ctx is done.
type Callback func(ctx context.Context, req Request) (bool, error)

// AlwaysApprove approves every request.
type AlwaysApprove struct{}

func (AlwaysApprove) Name() string { return "bypass" }

func (AlwaysApprove) Evaluate(context.Context, Request) (Verdict, error) {
	return Approve, nil
}

// PreApproved approves requests whose action kind is in Actions and abstains
// otherwise.
type PreApproved struct {
	Actions *ActionSet
}

func (PreApproved) Name() string { return "auto-approved" }

func (p PreApproved) Evaluate(_ context.Context, req Request) (Verdict, error) {
	if p.Actions != nil && p.Actions.Contains(req.Action) {
		return Approve, nil
	}
	return Abstain, nil
}

// Interactive delegates to a callback and always reaches a verdict.
type Interactive struct {
	Callback Callback
}

func (Interactive) Name() string { return "interactive" }

func (p Interactive) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Reject, err
	}
	ok, err := p.Callback(ctx, req)
	if err != nil {
		return Reject, err
	}
	if ok {
		return Approve, nil
	}
	return Reject, nil
}
