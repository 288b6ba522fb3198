// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform means no release archive exists for this
	// OS and architecture.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrDownloadFailed covers fetching, extracting and installing.
	ErrDownloadFailed = errors.New("download failed")

	// ErrUnknownBinary means no Binary is registered under the name.
	ErrUnknownBinary = errors.New("unknown binary")
)

// Error describes a failed Ensure. Kind is one of the package sentinels.
type Error struct {
	Binary string
	Kind   error
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("provision %s: %v", e.Binary, e.Kind)
	}
	if errors.Is(e.Cause, e.Kind) {
		return fmt.Sprintf("provision %s: %v", e.Binary, e.Cause)
	}
	return fmt.Sprintf("provision %s: %v: %v", e.Binary, e.Kind, e.Cause)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
