// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package output

// RejectionMessage is shown to the agent when the user declines a tool call.
const RejectionMessage = "Error: The tool call is rejected by the user. Please follow the new instructions from the user."

const defaultSuccessMessage = "Operation completed successfully."

// FormatSuccess renders a successful result. A message after output is
// appended in brackets after a blank line; without output it stands alone.
func FormatSuccess(out, message string) string {
	switch {
	case out != "" && message != "":
		return out + "\n\n[" + message + "]"
	case out != "":
		return out
	case message != "":
		return message
	default:
		return defaultSuccessMessage
	}
}

// FormatError renders a failed result.
func FormatError(message string) string {
	return "Error: " + message
}

// FormatRejection renders a declined tool call. It is distinct from
// FormatError so the agent can tell "declined" from "failed".
func FormatRejection() string {
	return RejectionMessage
}
