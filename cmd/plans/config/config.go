// Package configcmder provides the config command for managing persistent
// plans configuration stored in the .plans/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/plans/pkg/cliui"
	"github.com/papercomputeco/plans/pkg/config"
)

const configLongDesc string = `Manage persistent plans configuration.

Configuration is stored as config.toml in the .plans/ directory and provides
default values for command flags. PLANS_ environment variables override the
file, and CLI flags override both.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  api.listen,
  broker.provider, broker.brokers, broker.group_id, broker.topic_prefix,
  broker.max_attempts, broker.backoff,
  search.provider, search.target, search.collection,
  auth.enabled, auth.issuers, auth.hmac_secret, auth.rsa_public_key_path,
  log.level, log.json,
  client.api_target

Use subcommands to get, set, or list configuration values:
  plans config set <key> <value>    Set a configuration value
  plans config get <key>            Get a configuration value
  plans config list                 List all configuration values

Examples:
  plans config set broker.provider kafka
  plans config set broker.brokers kafka-1:9092,kafka-2:9092
  plans config get search.provider
  plans config list`

const configShortDesc string = "Manage persistent plans configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// completeKeys offers config keys for the first positional argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

// openConfig loads the configer for configDir and prints which file is used.
func openConfig(w io.Writer, configDir string) (*config.Configer, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
	return cfger, nil
}
