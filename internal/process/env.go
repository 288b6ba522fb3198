// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package process

import (
	"os"
	"strings"
)

// InjectionEnvVars alter how shells and interpreters start up and are
// stripped from child environments. Entries ending in "_" match as
// prefixes.
var InjectionEnvVars = []string{
	// Library injection
	"LD_PRELOAD",
	"LD_LIBRARY_PATH",
	"LD_AUDIT",
	"DYLD_INSERT_LIBRARIES",
	"DYLD_LIBRARY_PATH",
	"DYLD_FRAMEWORK_PATH",

	// Shell startup
	"BASH_ENV",
	"ENV",
	"SHELLOPTS",
	"BASHOPTS",
	"CDPATH",
	"GLOBIGNORE",
	"BASH_FUNC_",
	"PROMPT_COMMAND",
	"IFS",
	"PS4",

	// Interpreter startup hooks
	"PYTHONSTARTUP",
	"PERL5OPT",
	"RUBYOPT",
	"NODE_OPTIONS",
	"JAVA_TOOL_OPTIONS",
	"_JAVA_OPTIONS",
}

// SanitizedEnv returns the current environment without InjectionEnvVars.
func SanitizedEnv() []string {
	return FilterEnv(os.Environ(), InjectionEnvVars)
}

// FilterEnv drops entries of env whose name is listed in blocked.
func FilterEnv(env, blocked []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if !isBlocked(name, blocked) {
			out = append(out, kv)
		}
	}
	return out
}

func isBlocked(name string, blocked []string) bool {
	for _, b := range blocked {
		if strings.HasSuffix(b, "_") && strings.HasPrefix(name, b) {
			return true
		}
		if strings.EqualFold(name, b) {
			return true
		}
	}
	return false
}
