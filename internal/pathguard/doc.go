// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pathguard resolves tool-supplied paths against a session's work
// root.
//
// Resolve expands "~", anchors relative paths at the root and canonicalizes
// the result (symlinks and ".." resolved, including for paths that do not
// exist yet). A result outside the root is accepted only when the caller
// spelled it as an absolute path; a relative path that escapes the root
// fails with ErrPathNotAbsolute.
//
// The Require* helpers are the shared precondition checks used by every
// file-touching tool so that "missing", "not a file" and "not a directory"
// surface identically everywhere.
//
// # Usage
//
//	r, err := pathguard.Resolve(args.Path, sess.WorkRoot())
//	if err != nil {
//	    return err
//	}
//	if err := pathguard.RequireFile(r); err != nil {
//	    return err
//	}
//	data, err := os.ReadFile(r.Path)
package pathguard
