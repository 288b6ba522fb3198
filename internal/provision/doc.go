// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provision makes external helper binaries available on demand.
//
// Ensure looks in the install directory, then on PATH. Only when both miss
// does it take the per-binary install slot, look again, and download the
// platform archive, extract the one executable and move it into place with
// an atomic rename. Concurrent callers for the same binary share a single
// install attempt; different binaries never wait on each other.
//
// An executable already present at the expected location is trusted as is.
// Nothing checks its version or a published checksum.
package provision
