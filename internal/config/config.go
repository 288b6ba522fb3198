// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"

	"github.com/jeranaias/agenttools/internal/output"
	"github.com/jeranaias/agenttools/internal/provision"
	"github.com/jeranaias/agenttools/internal/util"
)

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agenttools configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Session   SessionConfig   `toml:"session" json:"session"`
	Output    OutputConfig    `toml:"output" json:"output"`
	Shell     ShellConfig     `toml:"shell" json:"shell"`
	Provision ProvisionConfig `toml:"provision" json:"provision"`
	Web       WebConfig       `toml:"web" json:"web"`
	Log       LogConfig       `toml:"log" json:"log"`
}

// SessionConfig sets the work root and how side effects are approved.
type SessionConfig struct {
	// WorkDir is the session work root. Empty means the current directory.
	WorkDir string `toml:"work_dir" json:"work_dir"`

	// Yolo approves every side effect without asking.
	Yolo bool `toml:"yolo" json:"yolo"`

	// AutoApprovedActions lists action kinds approved without asking,
	// e.g. "edit file" or "run command".
	AutoApprovedActions []string `toml:"auto_approved_actions" json:"auto_approved_actions"`

	// ApprovalTimeoutSecs bounds how long an interactive prompt waits.
	// Zero waits indefinitely. An unanswered prompt is a rejection.
	ApprovalTimeoutSecs int `toml:"approval_timeout_secs" json:"approval_timeout_secs"`
}

// OutputConfig bounds text returned to the agent.
type OutputConfig struct {
	MaxChars      int `toml:"max_chars" json:"max_chars"`
	MaxLineLength int `toml:"max_line_length" json:"max_line_length"`
}

// ShellConfig bounds shell command timeouts.
type ShellConfig struct {
	DefaultTimeoutSecs int `toml:"default_timeout_secs" json:"default_timeout_secs"`
	MaxTimeoutSecs     int `toml:"max_timeout_secs" json:"max_timeout_secs"`
}

// DefaultTimeout returns DefaultTimeoutSecs as a duration.
func (s ShellConfig) DefaultTimeout() time.Duration {
	return time.Duration(s.DefaultTimeoutSecs) * time.Second
}

// ProvisionConfig controls helper binary installation.
type ProvisionConfig struct {
	// InstallDir empty means provision.DefaultInstallDir().
	InstallDir     string `toml:"install_dir" json:"install_dir"`
	RipgrepVersion string `toml:"ripgrep_version" json:"ripgrep_version"`
	RipgrepBaseURL string `toml:"ripgrep_base_url" json:"ripgrep_base_url"`
}

// WebConfig configures outbound HTTP for the web tools.
type WebConfig struct {
	UserAgent         string        `toml:"user_agent" json:"user_agent"`
	RequestsPerSecond float64       `toml:"requests_per_second" json:"requests_per_second"`
	TimeoutSecs       int           `toml:"timeout_secs" json:"timeout_secs"`
	Search            ServiceConfig `toml:"search" json:"search"`
	Fetch             ServiceConfig `toml:"fetch" json:"fetch"`
}

// ServiceConfig points a web tool at a hosted service. The search tool is
// unavailable without a BaseURL; the fetch tool falls back to direct GETs.
type ServiceConfig struct {
	BaseURL       string            `toml:"base_url" json:"base_url"`
	APIKey        string            `toml:"api_key" json:"api_key"`
	CustomHeaders map[string]string `toml:"custom_headers" json:"custom_headers"`
}

// Enabled reports whether a base URL is configured.
func (s ServiceConfig) Enabled() bool {
	return s.BaseURL != ""
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Level string `toml:"level" json:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Output: OutputConfig{
			MaxChars:      output.DefaultMaxChars,
			MaxLineLength: output.DefaultMaxLineLength,
		},
		Shell: ShellConfig{
			DefaultTimeoutSecs: 60,
			MaxTimeoutSecs:     300,
		},
		Provision: ProvisionConfig{
			RipgrepVersion: provision.DefaultRipgrepVersion,
			RipgrepBaseURL: provision.DefaultRipgrepBaseURL,
		},
		Web: WebConfig{
			UserAgent:         "agenttools/1.0",
			RequestsPerSecond: 2,
			TimeoutSecs:       30,
		},
		Log: LogConfig{Level: "info"},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory, ~/.agenttools unless
// AGENTTOOLS_CONFIG_DIR is set.
func ConfigDir() (string, error) {
	if dir := os.Getenv("AGENTTOOLS_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".agenttools"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// SECURITY: Config files hold API keys and should be owner-only
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads config.toml, else config.json, else uses defaults. Environment
// overrides are applied last, then defaults fill gaps and the result is
// validated.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err == nil {
			return LoadFromPath(path)
		}
	}
	return finish(Default())
}

// LoadFromPath loads a specific file. Files ending in .json are read as
// JSON with comments; anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file, comments allowed, over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(jsonc.ToJSON(data))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default TOML path.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# agenttools configuration file\n")
	sb.WriteString("# Environment variables AGENTTOOLS_* override these values.\n\n")
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents a torn config on crash
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON with owner-only permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks cross-field constraints. It returns ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Session.ApprovalTimeoutSecs < 0 {
		add("session.approval_timeout_secs", "must not be negative")
	}
	for _, a := range c.Session.AutoApprovedActions {
		if strings.TrimSpace(a) == "" {
			add("session.auto_approved_actions", "entries must not be empty")
			break
		}
	}

	if c.Output.MaxChars <= 0 {
		add("output.max_chars", "must be positive, got %d", c.Output.MaxChars)
	}
	if c.Output.MaxLineLength < 0 {
		add("output.max_line_length", "must not be negative, got %d", c.Output.MaxLineLength)
	} else if c.Output.MaxLineLength > 0 && c.Output.MaxLineLength <= 3 {
		add("output.max_line_length", "must leave room for an ellipsis, got %d", c.Output.MaxLineLength)
	}

	if c.Shell.MaxTimeoutSecs < 1 {
		add("shell.max_timeout_secs", "must be at least 1, got %d", c.Shell.MaxTimeoutSecs)
	}
	if c.Shell.DefaultTimeoutSecs < 1 || c.Shell.DefaultTimeoutSecs > c.Shell.MaxTimeoutSecs {
		add("shell.default_timeout_secs", "must be between 1 and %d, got %d", c.Shell.MaxTimeoutSecs, c.Shell.DefaultTimeoutSecs)
	}

	if c.Provision.RipgrepVersion == "" {
		add("provision.ripgrep_version", "must not be empty")
	}
	if err := validateURL(c.Provision.RipgrepBaseURL); err != nil {
		add("provision.ripgrep_base_url", "%v", err)
	}

	if c.Web.RequestsPerSecond < 0 {
		add("web.requests_per_second", "must not be negative")
	}
	if c.Web.TimeoutSecs < 1 {
		add("web.timeout_secs", "must be at least 1, got %d", c.Web.TimeoutSecs)
	}
	for name, svc := range map[string]ServiceConfig{"web.search": c.Web.Search, "web.fetch": c.Web.Fetch} {
		if svc.BaseURL == "" {
			continue
		}
		if err := validateURL(svc.BaseURL); err != nil {
			add(name+".base_url", "%v", err)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	return nil
}

// SetDefaults fills zero values with the built-in defaults.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Output.MaxChars == 0 {
		c.Output.MaxChars = d.Output.MaxChars
	}
	if c.Shell.DefaultTimeoutSecs == 0 {
		c.Shell.DefaultTimeoutSecs = d.Shell.DefaultTimeoutSecs
	}
	if c.Shell.MaxTimeoutSecs == 0 {
		c.Shell.MaxTimeoutSecs = d.Shell.MaxTimeoutSecs
	}
	if c.Provision.RipgrepVersion == "" {
		c.Provision.RipgrepVersion = d.Provision.RipgrepVersion
	}
	if c.Provision.RipgrepBaseURL == "" {
		c.Provision.RipgrepBaseURL = d.Provision.RipgrepBaseURL
	}
	if c.Web.UserAgent == "" {
		c.Web.UserAgent = d.Web.UserAgent
	}
	if c.Web.TimeoutSecs == 0 {
		c.Web.TimeoutSecs = d.Web.TimeoutSecs
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies AGENTTOOLS_* environment variables:
//   - AGENTTOOLS_WORK_DIR: session.work_dir
//   - AGENTTOOLS_YOLO: session.yolo ("1", "true", "yes")
//   - AGENTTOOLS_INSTALL_DIR: provision.install_dir
//   - AGENTTOOLS_SEARCH_URL, AGENTTOOLS_SEARCH_API_KEY: web.search
//   - AGENTTOOLS_FETCH_URL, AGENTTOOLS_FETCH_API_KEY: web.fetch
//   - AGENTTOOLS_LOG_LEVEL: log.level
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("AGENTTOOLS_WORK_DIR"); dir != "" {
		c.Session.WorkDir = dir
	}
	if yolo := os.Getenv("AGENTTOOLS_YOLO"); yolo != "" {
		c.Session.Yolo = parseBool(yolo)
	}
	if dir := os.Getenv("AGENTTOOLS_INSTALL_DIR"); dir != "" {
		c.Provision.InstallDir = dir
	}
	if u := os.Getenv("AGENTTOOLS_SEARCH_URL"); u != "" {
		c.Web.Search.BaseURL = u
	}
	if key := os.Getenv("AGENTTOOLS_SEARCH_API_KEY"); key != "" {
		c.Web.Search.APIKey = key
	}
	if u := os.Getenv("AGENTTOOLS_FETCH_URL"); u != "" {
		c.Web.Fetch.BaseURL = u
	}
	if key := os.Getenv("AGENTTOOLS_FETCH_API_KEY"); key != "" {
		c.Web.Fetch.APIKey = key
	}
	if level := os.Getenv("AGENTTOOLS_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}
