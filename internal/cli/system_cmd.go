// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// system_cmd.go - Direct access to provisioning, processes and path
// resolution.

package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/agenttools/internal/approval"
	"github.com/jeranaias/agenttools/internal/pathguard"
	"github.com/jeranaias/agenttools/internal/process"
	"github.com/jeranaias/agenttools/internal/tools"
)

// =============================================================================
// ENSURE COMMAND
// =============================================================================

func newEnsureCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <binary>",
		Short: "Locate a helper binary, installing it when missing",
		Example: `  agenttools ensure rg
  agenttools ensure rg --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			path, err := sess.Provisioner().Ensure(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if app.opts.JSON {
				return NewJSONResponse("ensure", map[string]string{
					"binary": args[0],
					"path":   path,
				}).Write(app.out)
			}
			fmt.Fprintf(app.out, "%s %s\n", RenderStatus("ok"), path)
			return nil
		},
	}
}

// =============================================================================
// RUN COMMAND
// =============================================================================

func newRunCommand(app *App) *cobra.Command {
	var (
		timeoutSecs int
		useShell    bool
	)

	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a command with the sanitized environment and a timeout",
		Long: `Run a command the way tools do: in the work directory, with secrets
removed from the environment and the process group killed on timeout.

The command needs "run command" approval. Its exit code is passed through.`,
		Example: `  agenttools run --timeout 30 -- go test ./...
  agenttools run --shell -- 'ls | wc -l'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}

			timeout := sess.Shell().DefaultTimeout()
			if cmd.Flags().Changed("timeout") {
				if timeoutSecs < 1 || timeoutSecs > sess.Shell().MaxTimeoutSecs {
					return NewValidationErrorWithExample("timeout", fmt.Sprint(timeoutSecs),
						fmt.Sprintf("must be between 1 and %d seconds", sess.Shell().MaxTimeoutSecs),
						"agenttools run --timeout 30 -- make")
				}
				timeout = time.Duration(timeoutSecs) * time.Second
			}

			argv := args
			if useShell {
				argv = process.ShellArgv(strings.Join(args, " "))
			}

			err = sess.Gate().Require(cmd.Context(), approval.Request{
				Tool:        "run",
				Action:      tools.ActionRunCommand,
				Description: fmt.Sprintf("Run command `%s`", strings.Join(args, " ")),
			})
			if err != nil {
				return err
			}

			res, runErr := sess.Runner().Run(cmd.Context(), argv, sess.WorkRoot(), timeout)
			var exitErr *process.ExitError
			if runErr != nil && !errors.As(runErr, &exitErr) {
				return runErr
			}

			if app.opts.JSON {
				data := RunData{
					Argv:       argv,
					ExitCode:   res.ExitCode,
					Output:     string(res.Output),
					DurationMs: res.Duration.Milliseconds(),
				}
				resp := NewJSONResponse("run", data)
				if runErr != nil {
					resp = NewJSONErrorResponse("run", data, runErr)
				}
				if err := resp.Write(app.out); err != nil {
					return err
				}
				return silentExit(runErr)
			}

			app.out.Write(res.Output)
			return silentExit(runErr)
		},
	}

	cmd.Flags().IntVarP(&timeoutSecs, "timeout", "t", 0, "Timeout in seconds (default shell.default_timeout_secs)")
	cmd.Flags().BoolVar(&useShell, "shell", false, "Run the arguments as one command line in "+process.ShellName())
	return cmd
}

// silentExit carries a child's exit code without printing an error; the
// child's own output already explains the failure.
func silentExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) {
		return &ToolError{Tool: "run", Message: err.Error(), exit: exitErr}
	}
	return err
}

// =============================================================================
// RESOLVE COMMAND
// =============================================================================

func newResolveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Show how a path resolves against the work directory",
		Long: `Show the canonical path a tool would use for <path>.

Relative paths that escape the work directory are refused; absolute paths
outside it are allowed and flagged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := app.Session()
			if err != nil {
				return err
			}
			r, err := sess.Resolve(args[0])
			if err != nil {
				return err
			}
			data := ResolveData{
				Input:       args[0],
				Path:        r.Path,
				OutsideRoot: r.OutsideRoot,
				Exists:      pathguard.Exists(r),
			}

			if app.opts.JSON {
				return NewJSONResponse("resolve", data).Write(app.out)
			}
			fmt.Fprintf(app.out, "%s%s\n", RenderLabel("Path:"), ValueStyle.Render(data.Path))
			fmt.Fprintf(app.out, "%s%t\n", RenderLabel("Outside work dir:"), data.OutsideRoot)
			fmt.Fprintf(app.out, "%s%t\n", RenderLabel("Exists:"), data.Exists)
			return nil
		},
	}
}
