// Package commands implements the wareply CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wareply",
		Short: "wareply - multi-account WhatsApp offline auto-responder",
		Long: `wareply supervises multiple WhatsApp account sessions and answers on
the owner's behalf while they are offline, with per-conversation
rate limiting and in-chat admin commands (!on, !off, !status, ...).

Examples:
  wareply serve
  wareply serve --config ./wareply.yaml
  wareply sessions`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSessionsCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
