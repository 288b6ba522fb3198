// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agenttools/internal/approval"
	"github.com/jeranaias/agenttools/internal/config"
	"github.com/jeranaias/agenttools/internal/pathguard"
	"github.com/jeranaias/agenttools/internal/process"
	"github.com/jeranaias/agenttools/internal/provision"
)

// =============================================================================
// HELPERS
// =============================================================================

type runResult struct {
	code   int
	stdout string
	stderr string
}

// isolate points config and install directories at temp dirs and clears
// environment overrides.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("AGENTTOOLS_CONFIG_DIR", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	for _, name := range []string{
		"AGENTTOOLS_WORK_DIR", "AGENTTOOLS_YOLO", "AGENTTOOLS_INSTALL_DIR",
		"AGENTTOOLS_SEARCH_URL", "AGENTTOOLS_SEARCH_API_KEY",
		"AGENTTOOLS_FETCH_URL", "AGENTTOOLS_FETCH_API_KEY", "AGENTTOOLS_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
	return t.TempDir()
}

func runCLI(t *testing.T, stdin string, args ...string) runResult {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return runResult{code: code, stdout: out.String(), stderr: errOut.String()}
}

func decodeResponse(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &resp), raw)
	return resp
}

// =============================================================================
// VERSION AND TOOLS
// =============================================================================

func TestVersion(t *testing.T) {
	isolate(t)

	res := runCLI(t, "", "version")
	assert.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "agenttools "+Version)

	res = runCLI(t, "", "version", "--json")
	require.Equal(t, ExitSuccess, res.code)
	resp := decodeResponse(t, res.stdout)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "version", resp["command"])
	assert.Nil(t, resp["error"])
}

func TestToolsList(t *testing.T) {
	dir := isolate(t)

	res := runCLI(t, "", "tools", "--work-dir", dir)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	for _, name := range []string{"read_file", "write_file", "str_replace_file", "glob", "grep", "shell"} {
		assert.Contains(t, res.stdout, name)
	}

	res = runCLI(t, "", "tools", "--work-dir", dir, "--json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var resp struct {
		Data []ToolInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	require.NotEmpty(t, resp.Data)
	for _, info := range resp.Data {
		assert.Empty(t, info.Parameters, info.Name)
		assert.NotContains(t, info.Description, "\n", info.Name)
	}
}

func TestToolsShow(t *testing.T) {
	dir := isolate(t)

	res := runCLI(t, "", "tools", "show", "shell", "--work-dir", dir, "--json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var resp struct {
		Data ToolInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "shell", resp.Data.Name)
	assert.Equal(t, "Critical", resp.Data.Risk)
	assert.True(t, resp.Data.NeedsApproval)

	var names []string
	for _, p := range resp.Data.Parameters {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "command")

	res = runCLI(t, "", "tools", "show", "nope", "--work-dir", dir)
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.stderr, "unknown tool")
}

// =============================================================================
// CALL
// =============================================================================

func TestCallReadFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world\n"), 0644))

	res := runCLI(t, "", "call", "read_file", `{"path": "hello.txt"}`, "--work-dir", dir)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "hello world")
}

func TestCallArgumentsFromStdin(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("from stdin\n"), 0644))

	res := runCLI(t, `{"path": "a.txt"}`, "call", "read_file", "-", "--work-dir", dir, "--json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var resp struct {
		Success bool         `json:"success"`
		Data    ToolCallData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.Success)
	assert.Contains(t, resp.Data.Output, "from stdin")
	assert.Contains(t, resp.Data.Rendered, "from stdin")
}

func TestCallVerboseLogsExecutorStats(t *testing.T) {
	dir := isolate(t)

	res := runCLI(t, "", "call", "think", `{"thought": "check the edge cases"}`, "--work-dir", dir, "--verbose")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "Thought logged\n", res.stdout)
	assert.Contains(t, res.stderr, "executor stats")
	assert.Contains(t, res.stderr, "calls=1")
	assert.Contains(t, res.stderr, "successful=1")
}

func TestCallWriteRejectedWithoutTerminal(t *testing.T) {
	dir := isolate(t)

	res := runCLI(t, "", "call", "write_file", `{"path": "new.txt", "content": "x"}`, "--work-dir", dir)
	assert.Equal(t, ExitRejectedError, res.code)
	assert.Contains(t, res.stdout, "rejected by the user")
	assert.NotContains(t, res.stderr, "[ERROR]")

	_, err := os.Stat(filepath.Join(dir, "new.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCallWriteApprovedByFlag(t *testing.T) {
	tests := []struct {
		name string
		flag []string
	}{
		{"approve action", []string{"--approve", "edit file"}},
		{"yolo", []string{"--yolo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			args := append([]string{"call", "write_file", `{"path": "new.txt", "content": "written"}`, "--work-dir", dir}, tt.flag...)

			res := runCLI(t, "", args...)
			require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)

			data, err := os.ReadFile(filepath.Join(dir, "new.txt"))
			require.NoError(t, err)
			assert.Equal(t, "written", string(data))
		})
	}
}

func TestCallWriteApprovedByConfig(t *testing.T) {
	dir := isolate(t)

	res := runCLI(t, "", "config", "set", "session.auto_approved_actions", "edit file")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = runCLI(t, "", "call", "write_file", `{"path": "c.txt", "content": "ok"}`, "--work-dir", dir)
	require.Equal(t, ExitSuccess, res.code, res.stdout+res.stderr)
	assert.FileExists(t, filepath.Join(dir, "c.txt"))
}

func TestCallFailures(t *testing.T) {
	dir := isolate(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{
			name:     "unknown tool",
			args:     []string{"call", "nope", "{}"},
			wantCode: ExitUsageError,
		},
		{
			name:     "missing file",
			args:     []string{"call", "read_file", `{"path": "missing.txt"}`},
			wantCode: ExitGeneralError,
			wantOut:  "Error: `missing.txt` does not exist.",
		},
		{
			name:     "missing required argument",
			args:     []string{"call", "read_file", `{}`},
			wantCode: ExitGeneralError,
			wantOut:  "Invalid arguments for read_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, "", append(tt.args, "--work-dir", dir)...)
			assert.Equal(t, tt.wantCode, res.code)
			if tt.wantOut != "" {
				assert.Contains(t, res.stdout, tt.wantOut)
			}
		})
	}
}

// =============================================================================
// RUN, RESOLVE, ENSURE
// =============================================================================

func TestRunCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := isolate(t)

	res := runCLI(t, "", "run", "--work-dir", dir, "--yolo", "--", "sh", "-c", "echo hi")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "hi\n", res.stdout)

	res = runCLI(t, "", "run", "--work-dir", dir, "--yolo", "--", "sh", "-c", "echo partial; exit 3")
	assert.Equal(t, 3, res.code)
	assert.Equal(t, "partial\n", res.stdout)
	assert.NotContains(t, res.stderr, "[ERROR]")

	res = runCLI(t, "", "run", "--work-dir", dir, "--yolo", "--json", "--", "sh", "-c", "exit 5")
	assert.Equal(t, 5, res.code)
	var resp struct {
		Success bool    `json:"success"`
		Data    RunData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, 5, resp.Data.ExitCode)
}

func TestRunNeedsApproval(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := isolate(t)
	marker := filepath.Join(dir, "ran")

	res := runCLI(t, "", "run", "--work-dir", dir, "--", "sh", "-c", "touch "+marker)
	assert.Equal(t, ExitRejectedError, res.code)
	assert.NoFileExists(t, marker)

	res = runCLI(t, "", "run", "--work-dir", dir, "--approve", "run command", "--", "sh", "-c", "touch "+marker)
	assert.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.FileExists(t, marker)
}

func TestRunTimeoutBounds(t *testing.T) {
	dir := isolate(t)

	res := runCLI(t, "", "run", "--work-dir", dir, "--yolo", "--timeout", "0", "--", "true")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.stderr, "between 1 and 300")
}

func TestResolve(t *testing.T) {
	dir := isolate(t)
	root, err := pathguard.Canonicalize(dir)
	require.NoError(t, err)
	outside := t.TempDir()
	outsideCanonical, err := pathguard.Canonicalize(outside)
	require.NoError(t, err)

	tests := []struct {
		name        string
		input       string
		wantCode    int
		wantPath    string
		wantOutside bool
	}{
		{name: "relative", input: "sub/file.txt", wantPath: filepath.Join(root, "sub", "file.txt")},
		{name: "root", input: ".", wantPath: root},
		{name: "absolute outside", input: outside, wantPath: outsideCanonical, wantOutside: true},
		{name: "relative escape", input: "../escape.txt", wantCode: ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, "", "resolve", tt.input, "--work-dir", dir, "--json")
			require.Equal(t, tt.wantCode, res.code, res.stdout+res.stderr)
			if tt.wantCode != ExitSuccess {
				return
			}
			var resp struct {
				Data ResolveData `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
			assert.Equal(t, tt.wantPath, resp.Data.Path)
			assert.Equal(t, tt.wantOutside, resp.Data.OutsideRoot)
		})
	}
}

func TestEnsureUnknownBinary(t *testing.T) {
	dir := isolate(t)

	res := runCLI(t, "", "ensure", "definitely-not-a-real-binary-xyz", "--work-dir", dir)
	assert.Equal(t, ExitNotFoundError, res.code)
	assert.Contains(t, res.stderr, "definitely-not-a-real-binary-xyz")
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigSetGet(t *testing.T) {
	isolate(t)

	res := runCLI(t, "", "config", "set", "shell.max_timeout_secs", "600")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = runCLI(t, "", "config", "get", "shell.max_timeout_secs")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "600\n", res.stdout)

	res = runCLI(t, "", "config", "path")
	require.Equal(t, ExitSuccess, res.code)
	path := strings.TrimSpace(res.stdout)
	assert.Equal(t, "config.toml", filepath.Base(path))
	assert.FileExists(t, path)
}

func TestConfigSetJSONFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "agenttools.json")

	res := runCLI(t, "", "--config", path, "config", "set", "log.level", "debug")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	cfg := config.Default()
	require.NoError(t, config.LoadJSON(cfg, path))
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestConfigErrors(t *testing.T) {
	isolate(t)

	res := runCLI(t, "", "config", "get", "no.such.key")
	assert.Equal(t, ExitUsageError, res.code)

	res = runCLI(t, "", "config", "set", "shell.max_timeout_secs", "abc")
	assert.Equal(t, ExitUsageError, res.code)

	res = runCLI(t, "", "config", "set", "shell.max_timeout_secs", "-5")
	assert.Equal(t, ExitConfigError, res.code)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("this is = = not toml"), 0600))
	res = runCLI(t, "", "config", "show", "--config", bad)
	assert.Equal(t, ExitConfigError, res.code)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("AGENTTOOLS_SEARCH_API_KEY", "sk-secret")

	res := runCLI(t, "", "config", "show")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "sk-secret")
	assert.Contains(t, res.stdout, maskedSecret)
}

func TestConfigKeys(t *testing.T) {
	isolate(t)

	res := runCLI(t, "", "config", "keys")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "shell.max_timeout_secs\n")
	assert.Contains(t, res.stdout, "session.auto_approved_actions\n")
}

// =============================================================================
// FLAGS AND METRICS
// =============================================================================

func TestUnknownFlag(t *testing.T) {
	isolate(t)

	res := runCLI(t, "", "version", "--no-such-flag")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.stderr, "no-such-flag")
}

func TestMetricsFlag(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.txt"), []byte("m\n"), 0644))

	res := runCLI(t, "", "call", "read_file", `{"path": "m.txt"}`, "--work-dir", dir, "--metrics")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stderr, "agenttools_")
	assert.Contains(t, res.stderr, `tool="read_file"`)
}

// =============================================================================
// UNITS
// =============================================================================

func TestWithPromptTimeout(t *testing.T) {
	blocking := func(ctx context.Context, _ approval.Request) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}

	ok, err := withPromptTimeout(blocking, 20*time.Millisecond)(context.Background(), approval.Request{})
	assert.False(t, ok)
	assert.NoError(t, err)

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = withPromptTimeout(blocking, time.Minute)(parent, approval.Request{})
	assert.ErrorIs(t, err, context.Canceled)

	approve := func(context.Context, approval.Request) (bool, error) { return true, nil }
	ok, err = withPromptTimeout(approve, 0)(context.Background(), approval.Request{})
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"validation", &ValidationError{Field: "x"}, ExitUsageError},
		{"config validation", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "a", Message: "b"}}), ExitConfigError},
		{"config command", NewCommandError("config", "load", "bad", errors.New("x")), ExitConfigError},
		{"rejected", fmt.Errorf("wrapped: %w", approval.ErrRejected), ExitRejectedError},
		{"rejected tool", &ToolError{Tool: "shell", Rejected: true}, ExitRejectedError},
		{"timeout", &process.TimeoutError{Timeout: time.Second}, ExitTimeoutError},
		{"not found", &pathguard.PathError{Path: "x", Err: pathguard.ErrNotFound}, ExitNotFoundError},
		{"unknown binary", &provision.Error{Binary: "x", Kind: provision.ErrUnknownBinary}, ExitNotFoundError},
		{"download", &provision.Error{Binary: "rg", Kind: provision.ErrDownloadFailed, Cause: errors.New("status 404")}, ExitNetworkError},
		{"child exit", &ToolError{Tool: "run", exit: &process.ExitError{ExitCode: 42}}, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", WrapText("one two three", 8))
	assert.Equal(t, "short\n\nkept", WrapText("short\n\nkept", 20))
}
