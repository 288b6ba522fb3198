// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command and shared application state.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jeranaias/agenttools/internal/approval"
	"github.com/jeranaias/agenttools/internal/config"
	"github.com/jeranaias/agenttools/internal/output"
	"github.com/jeranaias/agenttools/internal/process"
	"github.com/jeranaias/agenttools/internal/provision"
	"github.com/jeranaias/agenttools/internal/session"
	"github.com/jeranaias/agenttools/internal/telemetry"
	"github.com/jeranaias/agenttools/internal/tools"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// Options holds the global flags.
type Options struct {
	ConfigPath string
	WorkDir    string
	Verbose    bool
	JSON       bool
	Yolo       bool
	Approve    []string
	Metrics    bool
}

// =============================================================================
// APPLICATION STATE
// =============================================================================

// App is the state shared by the commands of one invocation. Config and
// session are built on first use so that commands like version and
// config path work without a valid work directory.
type App struct {
	opts   Options
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	gate     *approval.Gate
	session  *session.Session
	tools    *tools.Registry
	executor *tools.Executor
}

// NewApp creates an App reading prompts from in and writing results to out
// and diagnostics to errOut.
func NewApp(in io.Reader, out, errOut io.Writer) *App {
	registry := prometheus.NewRegistry()
	return &App{
		in:       in,
		out:      out,
		errOut:   errOut,
		registry: registry,
		metrics:  telemetry.MustNewMetrics(registry),
	}
}

// Config loads the configuration once.
func (a *App) Config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	var (
		cfg *config.Config
		err error
	)
	if a.opts.ConfigPath != "" {
		cfg, err = config.LoadFromPath(a.opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, NewCommandError("config", "load", "could not load configuration", err)
	}
	a.cfg = cfg
	a.logger = newLogger(a.errOut, cfg.Log.Level, a.opts.Verbose)
	return cfg, nil
}

// Session builds the approval gate, session, tool registry and executor
// once.
func (a *App) Session() (*session.Session, error) {
	if a.session != nil {
		return a.session, nil
	}
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}

	a.gate = a.newGate(cfg)

	installDir := cfg.Provision.InstallDir
	if installDir == "" {
		if installDir, err = provision.DefaultInstallDir(); err != nil {
			return nil, err
		}
	}
	provisioner := provision.New(installDir,
		provision.WithBinary(provision.Ripgrep(cfg.Provision.RipgrepVersion, cfg.Provision.RipgrepBaseURL)),
		provision.WithDownloader(provision.NewHTTPDownloader(cfg.Web.UserAgent)),
		provision.WithLogger(a.logger),
		provision.WithObserver(a.metrics),
	)

	workDir := a.opts.WorkDir
	if workDir == "" {
		workDir = cfg.Session.WorkDir
	}
	if workDir == "" {
		workDir = "."
	}

	sess, err := session.New(workDir, a.gate,
		session.WithProvisioner(provisioner),
		session.WithRunner(&process.Runner{Logger: a.logger, Observer: a.metrics}),
		session.WithLimits(output.Limits{MaxChars: cfg.Output.MaxChars, MaxLineLength: cfg.Output.MaxLineLength}),
		session.WithWeb(cfg.Web),
		session.WithShell(cfg.Shell),
		session.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}

	a.session = sess
	a.tools = tools.NewRegistry(sess)
	a.executor = tools.NewExecutor(a.tools,
		tools.WithExecutorLogger(sess.Logger()),
		tools.WithExecutorObserver(a.metrics),
	)
	return sess, nil
}

// newGate combines the bypass flag, the auto-approved actions and, when
// stdin is a terminal, an interactive prompter on stderr. Without a
// terminal anything not pre-approved is rejected.
func (a *App) newGate(cfg *config.Config) *approval.Gate {
	actions := append(append([]string(nil), cfg.Session.AutoApprovedActions...), a.opts.Approve...)
	opts := []approval.Option{
		approval.WithBypass(a.opts.Yolo || cfg.Session.Yolo),
		approval.WithAutoApproved(actions...),
		approval.WithLogger(a.logger),
		approval.WithObserver(a.metrics),
	}

	var prompter *approval.TerminalPrompter
	if f, ok := a.in.(*os.File); ok && approval.IsInteractive(f) {
		prompter = approval.NewTerminalPrompter(a.in, a.errOut)
		opts = append(opts, approval.WithCallback(
			withPromptTimeout(prompter.Ask, time.Duration(cfg.Session.ApprovalTimeoutSecs)*time.Second)))
	}

	gate := approval.NewGate(opts...)
	if prompter != nil {
		prompter.OnAlways(gate.ApproveAction)
	}
	return gate
}

// withPromptTimeout treats a prompt left unanswered for timeout as a
// rejection. A zero timeout waits indefinitely.
func withPromptTimeout(cb approval.Callback, timeout time.Duration) approval.Callback {
	if timeout <= 0 {
		return cb
	}
	return func(ctx context.Context, req approval.Request) (bool, error) {
		promptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		ok, err := cb(promptCtx, req)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return ok, err
	}
}

// newLogger writes text logs to w. Verbose forces debug level.
func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "agenttools",
		Short: "Safety core for agent tools: path guards, approvals, processes and provisioning",
		Long: `agenttools runs the tools an AI agent uses on a local machine.

Every file path is resolved against a work directory, every side effect
goes through an approval gate, child processes run with a sanitized
environment and a timeout, and helper binaries such as ripgrep are
installed on demand.

Examples:
  agenttools tools                                  # List tools
  agenttools call read_file '{"path": "main.go"}'    # Run a tool
  agenttools call shell '{"command": "go test ./..."}' --approve "run command"
  agenttools ensure rg                              # Locate or install ripgrep
  agenttools run --timeout 10 -- make build         # Run a command directly
  agenttools resolve ../other/file.txt              # Check path resolution
  agenttools config set shell.max_timeout_secs 600  # Change a setting`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !app.opts.Metrics {
				return nil
			}
			return telemetry.WriteText(app.errOut, app.registry)
		},
	}

	root.SetIn(app.in)
	root.SetOut(app.out)
	root.SetErr(app.errOut)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ValidationError{Field: "flags", Reason: err.Error(), Example: cmd.UseLine()}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&app.opts.ConfigPath, "config", "c", "", "Config file (default ~/.agenttools/config.toml)")
	flags.StringVarP(&app.opts.WorkDir, "work-dir", "w", "", "Session work directory (default current directory)")
	flags.BoolVarP(&app.opts.Verbose, "verbose", "v", false, "Debug logging on stderr")
	flags.BoolVar(&app.opts.JSON, "json", false, "Print results as JSON")
	flags.BoolVar(&app.opts.Yolo, "yolo", false, "Approve every side effect without asking")
	flags.StringSliceVar(&app.opts.Approve, "approve", nil, `Auto-approve an action kind, e.g. "edit file" or "run command"`)
	flags.BoolVar(&app.opts.Metrics, "metrics", false, "Print Prometheus metrics on stderr after the command")

	root.AddCommand(
		newCallCommand(app),
		newToolsCommand(app),
		newEnsureCommand(app),
		newRunCommand(app),
		newResolveCommand(app),
		newConfigCommand(app),
		newVersionCommand(app),
	)
	return root
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.opts.JSON {
				return NewJSONResponse("version", map[string]string{
					"version":    Version,
					"git_commit": GitCommit,
					"build_date": BuildDate,
				}).Write(app.out)
			}
			fmt.Fprintf(app.out, "agenttools %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}

// =============================================================================
// EXECUTION
// =============================================================================

// Execute runs the CLI against the process streams and returns the exit
// code. SIGINT and SIGTERM cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// Run executes args and returns the exit code.
func Run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	app := NewApp(in, out, errOut)
	root := NewRootCommand(app)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		DisplayError(errOut, err, app.opts.JSON)
	}
	return GetExitCode(err)
}

