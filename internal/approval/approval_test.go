// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package approval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var editReq = Request{Tool: "write_file", Action: "edit file", Description: "Write file `a.txt`"}

type recordingObserver struct {
	mu      sync.Mutex
	entries []string
}

func (o *recordingObserver) ObserveApproval(tool, action, decision, source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, tool+"|"+action+"|"+decision+"|"+source)
}

// =============================================================================
// DECISION ORDER TESTS
// =============================================================================

func TestGate_FailsClosedWithoutPolicy(t *testing.T) {
	g := NewGate()

	d, err := g.Decide(context.Background(), editReq)
	require.NoError(t, err)
	assert.Equal(t, Rejected, d)
	assert.ErrorIs(t, g.Require(context.Background(), editReq), ErrRejected)
}

func TestGate_BypassAlwaysApproves(t *testing.T) {
	var calls atomic.Int32
	g := NewGate(WithBypass(true), WithCallback(func(context.Context, Request) (bool, error) {
		calls.Add(1)
		return false, nil
	}))

	for _, action := range []string{"edit file", "run command", "anything"} {
		d, err := g.Decide(context.Background(), Request{Action: action})
		require.NoError(t, err)
		assert.Equal(t, Approved, d)
	}
	assert.Zero(t, calls.Load(), "callback must not be consulted under bypass")
	assert.True(t, g.Bypassed())
}

func TestGate_AutoApprovedSkipsCallback(t *testing.T) {
	var calls atomic.Int32
	g := NewGate(
		WithAutoApproved("edit file"),
		WithCallback(func(context.Context, Request) (bool, error) {
			calls.Add(1)
			return false, nil
		}),
	)

	require.NoError(t, g.Require(context.Background(), editReq))
	assert.Zero(t, calls.Load())

	err := g.Require(context.Background(), Request{Action: "run command"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGate_ApproveActionThenDecide(t *testing.T) {
	g := NewGate()
	assert.False(t, g.AutoApproved("edit file"))

	g.ApproveAction("edit file")
	g.ApproveAction("edit file")

	d, err := g.Decide(context.Background(), editReq)
	require.NoError(t, err)
	assert.Equal(t, Approved, d)
	assert.Equal(t, []string{"edit file"}, g.AutoApprovedActions())
}

func TestGate_CallbackDecides(t *testing.T) {
	for _, answer := range []bool{true, false} {
		var got Request
		g := NewGate(WithCallback(func(_ context.Context, req Request) (bool, error) {
			got = req
			return answer, nil
		}))

		d, err := g.Decide(context.Background(), editReq)
		require.NoError(t, err)
		assert.Equal(t, answer, d == Approved)
		assert.Equal(t, editReq, got)
	}
}

func TestGate_CallbackErrorRejects(t *testing.T) {
	boom := errors.New("terminal gone")
	g := NewGate(WithCallback(func(context.Context, Request) (bool, error) {
		return true, boom
	}))

	d, err := g.Decide(context.Background(), editReq)
	assert.Equal(t, Rejected, d)
	assert.ErrorIs(t, err, boom)

	err = g.Require(context.Background(), editReq)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrRejected), "failures are not declines")
}

func TestGate_CancelledContextRejects(t *testing.T) {
	g := NewGate(WithCallback(func(context.Context, Request) (bool, error) {
		return true, nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := g.Decide(ctx, editReq)
	assert.Equal(t, Rejected, d)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGate_Observer(t *testing.T) {
	obs := &recordingObserver{}
	g := NewGate(WithAutoApproved("edit file"), WithObserver(obs))

	_, _ = g.Decide(context.Background(), editReq)
	_, _ = g.Decide(context.Background(), Request{Tool: "shell", Action: "run command"})

	assert.Equal(t, []string{
		"write_file|edit file|approved|auto-approved",
		"shell|run command|rejected|default",
	}, obs.entries)
}

func TestGate_ConcurrentApproveAndDecide(t *testing.T) {
	g := NewGate()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.ApproveAction("edit file")
		}()
		go func() {
			defer wg.Done()
			_, _ = g.Decide(context.Background(), editReq)
		}()
	}
	wg.Wait()

	assert.True(t, g.AutoApproved("edit file"))
}

// =============================================================================
// POLICY TESTS
// =============================================================================

func TestPolicies(t *testing.T) {
	ctx := context.Background()

	v, err := AlwaysApprove{}.Evaluate(ctx, editReq)
	require.NoError(t, err)
	assert.Equal(t, Approve, v)

	v, err = PreApproved{Actions: NewActionSet("run command")}.Evaluate(ctx, editReq)
	require.NoError(t, err)
	assert.Equal(t, Abstain, v)

	v, err = PreApproved{}.Evaluate(ctx, editReq)
	require.NoError(t, err)
	assert.Equal(t, Abstain, v)

	v, err = Interactive{Callback: func(context.Context, Request) (bool, error) { return false, nil }}.Evaluate(ctx, editReq)
	require.NoError(t, err)
	assert.Equal(t, Reject, v)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "approved", Approved.String())
	assert.Equal(t, "rejected", Rejected.String())
}
