// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the tool surface an agent calls into.
//
// Every tool runs against a *session.Session and uses the same safety core:
// paths go through the session's path guard, side effects wait for the
// approval gate, external programs run through the process runner and all
// returned text is bounded.
//
// # Key Types
//
//   - Tool: name, description, parameter schema and executor
//   - Registry: the tools bound to one session, grouped by kind
//   - Executor: validates arguments, runs tools and keeps an audit history
//   - Result: tool outcome; String renders it for the agent
//
// # Available Tools
//
// File Tools:
//   - read_file, read_media_file
//   - write_file, str_replace_file (require approval)
//   - glob, grep
//
// System Tools:
//   - shell (requires approval)
//
// Web Tools:
//   - search_web, fetch_url
//
// Agent Tools:
//   - think, set_todo_list
package tools
