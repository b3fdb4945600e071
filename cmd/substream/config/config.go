// Package configcmder provides the config command for managing persistent
// substream configuration stored in the .substream/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent substream configuration.

Configuration is stored as config.toml in the .substream/ directory and
provides default values for command flags. CLI flags and SUBSTREAM_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  subscription.url, subscription.read_buffer_size,
  watch.timeout,
  storage.sqlite_path, storage.postgres_dsn,
  api.listen,
  eventstream.kafka_brokers, eventstream.kafka_topic,
  log.json

Use subcommands to get, set, or list configuration values:
  substream config set <key> <value>    Set a configuration value
  substream config get <key>            Get a configuration value
  substream config list                 List all configuration values

Examples:
  substream config set subscription.url https://testnet.fuel.network/v1/graphql-sub
  substream config set watch.timeout 90s
  substream config get subscription.url
  substream config list`

const configShortDesc string = "Manage persistent substream configuration"

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
