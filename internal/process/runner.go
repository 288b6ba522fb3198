// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTimeout means the process was killed because its deadline passed.
	ErrTimeout = errors.New("process killed by timeout")

	// ErrProcessFailed means the process exited with a nonzero status.
	ErrProcessFailed = errors.New("process exited with nonzero status")
)

// TimeoutError carries whatever output was produced before the kill.
type TimeoutError struct {
	Timeout time.Duration
	Output  []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process killed by timeout (%s)", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ExitError reports a nonzero exit. ExitCode is -1 when the process died
// from a signal.
type ExitError struct {
	Argv     []string
	ExitCode int
	Output   []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command failed with exit code %d", e.ExitCode)
}

func (e *ExitError) Is(target error) bool {
	return target == ErrProcessFailed
}

// =============================================================================
// RUNNER
// =============================================================================

// DefaultWaitDelay bounds how long Run waits for output pipes to close after
// the child has been killed.
const DefaultWaitDelay = 2 * time.Second

// Result is the outcome of one Run.
type Result struct {
	// Output is stdout and stderr interleaved in arrival order.
	Output   []byte
	ExitCode int
	Duration time.Duration
}

// Observer is told the outcome of every Run: "ok", "failed", "timeout" or
// "error".
type Observer interface {
	ObserveProcess(outcome string, d time.Duration)
}

// Runner starts child processes. The zero value is ready to use and runs
// children with SanitizedEnv().
type Runner struct {
	// Env is the complete child environment. Nil means SanitizedEnv().
	Env []string

	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration

	Logger   *slog.Logger
	Observer Observer
}

// Run executes argv in dir. A timeout <= 0 means no deadline beyond ctx.
//
// On a nonzero exit the populated Result is returned with an *ExitError. On
// timeout the child (and on unix its process group) is killed and reaped and
// a *TimeoutError is returned. A child that exits cleanly but leaves a
// background process holding its output succeeds once WaitDelay passes; on
// unix that background process is killed.
func (r *Runner) Run(ctx context.Context, argv []string, dir string, timeout time.Duration) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("empty command")
	}
	logger := r.logger()

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// exec serializes writes when Stdout and Stderr are the same writer
	var buf bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = r.Env
	if cmd.Env == nil {
		cmd.Env = SanitizedEnv()
	}
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	configureProcessGroup(cmd)

	logger.Debug("process start", "argv0", argv[0], "dir", dir, "timeout", timeout)
	start := time.Now()
	err := cmd.Run()
	res := Result{Output: buf.Bytes(), Duration: time.Since(start)}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	// Background children that kept the output pipes open go with the
	// leader.
	killProcessGroup(cmd)
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		logger.Debug("process left output open after exit", "argv0", argv[0], "wait_delay", cmd.WaitDelay)
		err = nil
	}

	switch {
	case err == nil:
		r.observe("ok", res.Duration)
		logger.Debug("process exit", "argv0", argv[0], "exit_code", 0, "duration", res.Duration)
		return res, nil

	case timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		r.observe("timeout", res.Duration)
		logger.Warn("process killed by timeout", "argv0", argv[0], "timeout", timeout, "duration", res.Duration)
		return res, &TimeoutError{Timeout: timeout, Output: res.Output}

	case ctx.Err() != nil:
		r.observe("error", res.Duration)
		return res, fmt.Errorf("run %s: %w", argv[0], ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.observe("failed", res.Duration)
		logger.Debug("process exit", "argv0", argv[0], "exit_code", res.ExitCode, "duration", res.Duration)
		return res, &ExitError{Argv: argv, ExitCode: res.ExitCode, Output: res.Output}
	}

	r.observe("error", res.Duration)
	return res, fmt.Errorf("run %s: %w", argv[0], err)
}

// Shell runs command through the platform shell. See Run.
func (r *Runner) Shell(ctx context.Context, command, dir string, timeout time.Duration) (Result, error) {
	return r.Run(ctx, ShellArgv(command), dir, timeout)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) observe(outcome string, d time.Duration) {
	if r.Observer != nil {
		r.Observer.ObserveProcess(outcome, d)
	}
}
