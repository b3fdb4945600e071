// Package substreamcmder
package substreamcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/substream/cmd/substream/config"
	historycmder "github.com/papercomputeco/substream/cmd/substream/history"
	servecmder "github.com/papercomputeco/substream/cmd/substream/serve"
	subscribecmder "github.com/papercomputeco/substream/cmd/substream/subscribe"
	watchcmder "github.com/papercomputeco/substream/cmd/substream/watch"
	versioncmder "github.com/papercomputeco/substream/cmd/version"
)

const substreamLongDesc string = `Substream submits transactions over GraphQL subscriptions
and follows their status until it settles.

Common commands:
  substream watch <tx>        Submit a transaction and wait for its status
  substream subscribe         Stream any subscription document as JSON lines
  substream serve             Run the watch API server
  substream history           List recorded watches`

const substreamShortDesc string = "Substream - GraphQL subscription status watcher"

func NewSubstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "substream",
		Short:         substreamShortDesc,
		Long:          substreamLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .substream/ config directory")

	// Add subcommands
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(subscribecmder.NewSubscribeCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
