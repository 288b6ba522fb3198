// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the agenttools command line.
//
// The CLI drives the same session an agent host would build: one work
// directory, one approval gate, one provisioner and one process runner,
// all configured from ~/.agenttools/config.toml and AGENTTOOLS_*
// environment variables.
//
// # Key Types
//
//   - App: Per-invocation state, built lazily by the commands
//   - JSONResponse: The envelope printed by every command under --json
//   - ToolError: A tool call that failed after its result was printed
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Execute())
//	}
//
// # Commands Overview
//
//   - call: Run one tool call
//   - tools: List tools, or show one with its parameters
//   - ensure: Locate or install a helper binary
//   - run: Run a command with the sanitized environment
//   - resolve: Show how a path resolves against the work directory
//   - config: Show, get and set configuration
//   - version: Print version information
//
// # Approval
//
// When stdin is a terminal, side effects are confirmed on stderr. Answering
// "always" approves that kind of action for the rest of the invocation.
// Without a terminal, side effects are rejected unless --yolo or --approve
// (or the matching config keys) allow them.
//
// # Exit Codes
//
//	0  success
//	1  general error
//	2  usage error
//	3  configuration error
//	4  rejected by the user
//	5  download or network error
//	7  path or binary not found
//	8  timeout
//
// A failed child process started by run exits with the child's code.
package cli
