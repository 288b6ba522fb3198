// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads agenttools settings.
//
// Supports both TOML and JSON configuration formats. JSON files may carry
// comments and trailing commas.
//
// # Key Types
//
//   - Config: all settings, one section per concern
//   - SessionConfig: work root and approval policy
//   - ShellConfig, OutputConfig: process timeouts and output bounds
//   - ProvisionConfig: where and what helper binaries are installed
//   - WebConfig, ServiceConfig: search and fetch services
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (AGENTTOOLS_*)
//   - ~/.agenttools/config.toml
//   - ~/.agenttools/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.Shell.DefaultTimeout()
package config
