// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the per-session state every tool call is run
// against.
//
// A Session owns the canonical work root, the approval gate, the binary
// provisioner, the process runner and the output limits. It is created once
// and passed explicitly to each tool; nothing here is global.
//
// # Usage
//
//	gate := approval.NewGate(approval.WithAutoApproved("edit file"))
//	sess, err := session.New("/srv/project", gate)
//	if err != nil {
//	    return err
//	}
//	resolved, err := sess.Resolve("notes.txt")
package session
