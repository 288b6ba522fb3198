// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tool_cmd.go - Commands that list and call agent tools.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/agenttools/internal/tools"
)

// =============================================================================
// CALL COMMAND
// =============================================================================

func newCallCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [arguments-json | -]",
		Short: "Run one tool call through the approval gate",
		Long: `Run one tool call and print the text the agent would receive.

Arguments are a JSON object. Pass "-" to read them from stdin. Slightly
malformed JSON is repaired before it is rejected.`,
		Example: `  agenttools call read_file '{"path": "go.mod", "n_lines": 20}'
  agenttools call glob '{"pattern": "**/*.go"}' --json
  echo '{"command": "ls"}' | agenttools call shell - --yolo`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Session(); err != nil {
				return err
			}

			name := args[0]
			if app.tools.Get(name) == nil {
				return NewValidationErrorWithExample("tool", name, "unknown tool", "agenttools tools")
			}

			raw := ""
			if len(args) == 2 {
				raw = args[1]
			}
			if raw == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return NewCommandError("call", "read", "could not read arguments from stdin", err)
				}
				raw = string(data)
			}

			result := app.executor.ExecuteJSON(cmd.Context(), name, raw)
			stats := app.executor.Stats()
			app.logger.Debug("executor stats",
				"calls", stats.TotalExecutions,
				"successful", stats.Successful,
				"failed", stats.Failed,
				"rejected", stats.Rejected,
				"avg_duration", stats.AvgDuration)
			return app.printToolResult(name, result)
		},
	}
}

// printToolResult prints result and returns a *ToolError when the call did
// not succeed.
func (a *App) printToolResult(name string, result tools.Result) error {
	var callErr error
	if !result.Success {
		msg := result.Error
		if result.Rejected {
			msg = "rejected by the user"
		}
		callErr = &ToolError{Tool: name, Rejected: result.Rejected, Message: msg}
	}

	if a.opts.JSON {
		data := ToolCallData{
			Tool:       name,
			Success:    result.Success,
			Rejected:   result.Rejected,
			Truncated:  result.Truncated,
			Output:     result.Output,
			Message:    result.Message,
			Error:      result.Error,
			Rendered:   result.String(),
			DurationMs: result.Duration.Milliseconds(),
		}
		resp := NewJSONResponse("call", data)
		if callErr != nil {
			resp = NewJSONErrorResponse("call", data, callErr)
		}
		if err := resp.Write(a.out); err != nil {
			return err
		}
		return callErr
	}

	rendered := result.String()
	fmt.Fprint(a.out, rendered)
	if !strings.HasSuffix(rendered, "\n") {
		fmt.Fprintln(a.out)
	}
	return callErr
}

// =============================================================================
// TOOLS COMMAND
// =============================================================================

func newToolsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tools",
		Aliases: []string{"list"},
		Short:   "List the available tools",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Session(); err != nil {
				return err
			}
			all := app.tools.All()

			if app.opts.JSON {
				infos := make([]ToolInfo, 0, len(all))
				for _, t := range all {
					infos = append(infos, toolInfo(t, false))
				}
				return NewJSONResponse("tools", infos).Write(app.out)
			}

			fmt.Fprintln(app.out)
			fmt.Fprintln(app.out, TitleStyle.Render("Tools"))
			fmt.Fprintln(app.out, RenderSeparatorAdaptive())
			for _, t := range all {
				approvalMark := ""
				if t.NeedsApproval {
					approvalMark = DimStyle.Render(" (approval)")
				}
				fmt.Fprintf(app.out, "  %s %-8s %s%s\n",
					RenderLabel(t.Name, 16), t.Group, RenderRisk(t.RiskLevel.String()), approvalMark)
				fmt.Fprintf(app.out, "  %s\n", DimStyle.Render(t.ShortDescription()))
			}
			fmt.Fprintln(app.out)
			return nil
		},
	}
	cmd.AddCommand(newToolsShowCommand(app))
	return cmd
}

func newToolsShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tool>",
		Short: "Show a tool's description and parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Session(); err != nil {
				return err
			}
			t := app.tools.Get(args[0])
			if t == nil {
				return NewValidationErrorWithExample("tool", args[0], "unknown tool", "agenttools tools")
			}
			info := toolInfo(t, true)

			if app.opts.JSON {
				return NewJSONResponse("tools show", info).Write(app.out)
			}

			fmt.Fprintln(app.out)
			fmt.Fprintln(app.out, TitleStyle.Render(info.Name))
			fmt.Fprintln(app.out, RenderSeparatorAdaptive())
			fmt.Fprintf(app.out, "%s%s\n", RenderLabel("Group:"), ValueStyle.Render(info.Group))
			fmt.Fprintf(app.out, "%s%s\n", RenderLabel("Risk:"), RenderRisk(info.Risk))
			fmt.Fprintf(app.out, "%s%t\n", RenderLabel("Needs approval:"), info.NeedsApproval)
			fmt.Fprintln(app.out)
			fmt.Fprintln(app.out, WrapText(info.Description, 0))

			if len(info.Parameters) > 0 {
				fmt.Fprintln(app.out)
				fmt.Fprintln(app.out, TitleStyle.Render("Parameters"))
				for _, p := range info.Parameters {
					req := ""
					if p.Required {
						req = WarningStyle.Render(" required")
					}
					fmt.Fprintf(app.out, "  %s %s%s\n", RenderLabel(p.Name, 18), DimStyle.Render(p.Type), req)
					if p.Description != "" {
						fmt.Fprintf(app.out, "    %s\n", p.Description)
					}
					if p.Default != nil {
						fmt.Fprintf(app.out, "    %s %v\n", DimStyle.Render("default:"), p.Default)
					}
					if len(p.Enum) > 0 {
						fmt.Fprintf(app.out, "    %s %s\n", DimStyle.Render("one of:"), strings.Join(p.Enum, ", "))
					}
				}
			}
			fmt.Fprintln(app.out)
			return nil
		},
	}
}

func toolInfo(t *tools.Tool, withParams bool) ToolInfo {
	info := ToolInfo{
		Name:          t.Name,
		Group:         t.Group.String(),
		Risk:          t.RiskLevel.String(),
		NeedsApproval: t.NeedsApproval,
		Description:   t.Description,
	}
	if !withParams {
		info.Description = t.ShortDescription()
		return info
	}
	for _, p := range t.Schema.Parameters {
		info.Parameters = append(info.Parameters, ParameterInfo{
			Name:        p.Name,
			Type:        p.Type,
			Required:    p.Required,
			Description: p.Description,
			Default:     p.Default,
			Enum:        p.Enum,
		})
	}
	return info
}
