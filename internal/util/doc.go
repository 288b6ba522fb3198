// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the tool packages.
//
// File Operations:
//   - AtomicWrite: stream into a temp file beside the target, fsync, rename
//   - AtomicWriteFile: AtomicWrite for an in-memory byte slice
//   - FileModeOr: existing permission bits of a file, or a fallback
//
// String Utilities:
//   - TruncateWidth: display-width aware truncation for terminal output
//   - FirstLine: the first line of a possibly multi-line string
package util
