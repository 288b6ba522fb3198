// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package process

import (
	"os/exec"
	"runtime"
)

// ShellArgv wraps command for the platform shell: bash, then sh, then
// /bin/sh on unix; PowerShell, then cmd on Windows.
func ShellArgv(command string) []string {
	if runtime.GOOS == "windows" {
		if path, err := exec.LookPath("powershell"); err == nil {
			return []string{path, "-NoProfile", "-NonInteractive", "-Command", command}
		}
		return []string{"cmd", "/C", command}
	}
	return []string{UnixShell(), "-c", command}
}

// UnixShell returns the shell used for commands on unix.
func UnixShell() string {
	for _, name := range []string{"bash", "sh"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return "/bin/sh"
}

// ShellName is the short name of the shell ShellArgv selects, for tool
// descriptions.
func ShellName() string {
	if runtime.GOOS == "windows" {
		if _, err := exec.LookPath("powershell"); err == nil {
			return "powershell"
		}
		return "cmd"
	}
	for _, name := range []string{"bash", "sh"} {
		if _, err := exec.LookPath(name); err == nil {
			return name
		}
	}
	return "sh"
}
