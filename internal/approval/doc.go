// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package approval decides whether a side-effecting tool call may proceed.
//
// A Gate consults an ordered chain of policies:
//
//  1. AlwaysApprove, present when the session runs with approvals bypassed
//  2. PreApproved, backed by the session's auto-approved action kinds
//  3. Interactive, present when a human can be asked
//
// The first policy that reaches a verdict wins. When every policy abstains
// the call is rejected, so a session without a bypass, a matching action
// kind or a callback never performs side effects.
//
// ApproveAction is the only way to grow the auto-approved set and approvals
// are never revoked for the life of the Gate.
package approval
