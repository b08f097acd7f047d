// Package configcmder provides the config command for managing persistent
// branchweave configuration stored in the .branchweave/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent branchweave configuration.

Configuration is stored as config.toml in the .branchweave/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  server.listen,
  store.backend, store.dsn, store.max_lineage_depth, store.max_batch_size,
  client.api_target,
  events.enabled, events.kafka_brokers, events.kafka_topic,
  log.level

Use subcommands to get, set, or list configuration values:
  branchweave config set <key> <value>    Set a configuration value
  branchweave config get <key>            Get a configuration value
  branchweave config list                 List all configuration values

Examples:
  branchweave config set store.backend postgres
  branchweave config set store.dsn postgres://localhost:5432/branchweave
  branchweave config get store.backend
  branchweave config list`

const configShortDesc string = "Manage persistent branchweave configuration"

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
