// Package configcmder provides the config command for managing persistent
// capsule configuration stored in the .capsule/ directory.
package configcmder

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/capsule/pkg/config"
)

const configLongDesc string = `Manage persistent capsule configuration.

Configuration is stored as config.toml in the .capsule/ directory and provides
default values for command flags. Environment variables (CAPSULE_CHAT_ENDPOINT,
CAPSULE_STORAGE_DRIVER, ...) override the file, and CLI flags always take
precedence over both.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  chat.endpoint, chat.api_key, chat.model, chat.timeout,
  api.listen,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  log.file

Use subcommands to get, set, or list configuration values:
  capsule config set <key> <value>    Set a configuration value
  capsule config get <key>            Get a configuration value
  capsule config list                 List all configuration values

Examples:
  capsule config set chat.endpoint https://example.com/functions/v1/chat
  capsule config set storage.driver postgres
  capsule config get chat.model
  capsule config list`

const configShortDesc string = "Manage persistent capsule configuration"

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

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// display masks secret values unless reveal is set, keeping the last four
// characters so keys can still be told apart.
func display(key, value string, reveal bool) string {
	if reveal || !config.IsSecretConfigKey(key) || value == "" {
		return value
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", 8) + value[len(value)-4:]
}
