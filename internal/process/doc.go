// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package process runs external programs with a deadline.
//
// Every Run starts exactly one child with stdout and stderr merged into a
// single ordered stream. On unix the child leads its own process group and a
// timeout kills the whole group, so pipelines and background jobs started by
// a shell die with it. Run always waits for the child to be reaped before it
// returns.
package process
