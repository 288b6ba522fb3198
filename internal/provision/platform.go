// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provision

import "fmt"

// Target maps a Go OS and architecture to the Rust-style target triple used
// in release archive names.
func Target(goos, goarch string) (string, error) {
	var arch string
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", fmt.Errorf("%w: architecture %s", ErrUnsupportedPlatform, goarch)
	}

	switch goos {
	case "darwin":
		return arch + "-apple-darwin", nil
	case "linux":
		// Static musl builds are only published for x86_64
		if arch == "x86_64" {
			return arch + "-unknown-linux-musl", nil
		}
		return arch + "-unknown-linux-gnu", nil
	case "windows":
		return arch + "-pc-windows-msvc", nil
	default:
		return "", fmt.Errorf("%w: operating system %s", ErrUnsupportedPlatform, goos)
	}
}

// ArchiveExt is the archive format used for goos.
func ArchiveExt(goos string) string {
	if goos == "windows" {
		return "zip"
	}
	return "tar.gz"
}

// ExecutableName appends ".exe" on Windows.
func ExecutableName(name, goos string) string {
	if goos == "windows" {
		return name + ".exe"
	}
	return name
}
