// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Config command handlers.
//
// Usage:
//   agenttools config show         - Print the effective configuration
//   agenttools config get KEY      - Print one value
//   agenttools config set KEY VAL  - Change one value in the config file
//   agenttools config keys         - List settable keys
//   agenttools config path         - Print the config file location

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/agenttools/internal/config"
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}
	cmd.AddCommand(
		newConfigShowCommand(app),
		newConfigGetCommand(app),
		newConfigSetCommand(app),
		newConfigKeysCommand(app),
		newConfigPathCommand(app),
	)
	return cmd
}

func newConfigShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			shown := maskSecrets(cfg)

			if app.opts.JSON {
				return NewJSONResponse("config show", shown).Write(app.out)
			}
			if err := toml.NewEncoder(app.out).Encode(shown); err != nil {
				return NewCommandError("config", "show", "could not encode configuration", err)
			}
			return nil
		},
	}
}

func newConfigGetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Print one configuration value",
		Example: "  agenttools config get shell.max_timeout_secs",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			value, err := cfg.Get(args[0])
			if err != nil {
				return NewValidationErrorWithExample("key", args[0], err.Error(), "agenttools config keys")
			}

			if app.opts.JSON {
				return NewJSONResponse("config get", map[string]interface{}{
					"key":   args[0],
					"value": value,
				}).Write(app.out)
			}
			if list, ok := value.([]string); ok {
				value = strings.Join(list, ",")
			}
			fmt.Fprintln(app.out, value)
			return nil
		},
	}
}

func newConfigSetCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value in the config file",
		Long: `Change one value in the config file and save it.

Environment overrides are not written back. List values are comma
separated. Everything after the key is taken as the value, so negative
numbers need no quoting; global flags such as --config go before "set".`,
		Example: `  agenttools config set shell.max_timeout_secs 600
  agenttools config set session.auto_approved_actions "edit file,run command"
  agenttools --config ./agenttools.json config set log.level debug`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			path, err := app.configFilePath()
			if err != nil {
				return NewCommandError("config", "set", "could not locate config file", err)
			}

			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				if strings.HasSuffix(path, ".json") {
					err = config.LoadJSON(cfg, path)
				} else {
					err = config.LoadTOML(cfg, path)
				}
				if err != nil {
					return NewCommandError("config", "set", "could not read "+path, err)
				}
			}

			if err := cfg.Set(key, value); err != nil {
				return NewValidationErrorWithExample("key", key, err.Error(), "agenttools config keys")
			}
			cfg.SetDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}

			if strings.HasSuffix(path, ".json") {
				err = config.SaveJSON(cfg, path)
			} else {
				err = config.SaveTOML(cfg, path)
			}
			if err != nil {
				return NewCommandError("config", "set", "could not save configuration", err)
			}

			if app.opts.JSON {
				return NewJSONResponse("config set", map[string]string{
					"key":   key,
					"value": value,
					"path":  path,
				}).Write(app.out)
			}
			fmt.Fprintf(app.out, "%s %s = %s\n", RenderStatus("ok"), key, value)
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newConfigKeysCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List settable configuration keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.Keys()
			if app.opts.JSON {
				return NewJSONResponse("config keys", keys).Write(app.out)
			}
			for _, k := range keys {
				fmt.Fprintln(app.out, k)
			}
			return nil
		},
	}
}

func newConfigPathCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.configFilePath()
			if err != nil {
				return NewCommandError("config", "path", "could not locate config file", err)
			}
			if app.opts.JSON {
				_, statErr := os.Stat(path)
				return NewJSONResponse("config path", map[string]interface{}{
					"path":   path,
					"exists": statErr == nil,
				}).Write(app.out)
			}
			fmt.Fprintln(app.out, path)
			return nil
		},
	}
}

// configFilePath is --config, else the existing TOML or JSON file, else
// the TOML path.
func (a *App) configFilePath() (string, error) {
	if a.opts.ConfigPath != "" {
		return a.opts.ConfigPath, nil
	}
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := config.ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

const maskedSecret = "********"

// maskSecrets returns a copy of cfg with API keys hidden.
func maskSecrets(cfg *config.Config) *config.Config {
	shown := *cfg
	if shown.Web.Search.APIKey != "" {
		shown.Web.Search.APIKey = maskedSecret
	}
	if shown.Web.Fetch.APIKey != "" {
		shown.Web.Fetch.APIKey = maskedSecret
	}
	return &shown
}
