package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Clique CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clique",
		Short: "Clique - a group-chat backend core",
		Long: `Clique is a group-chat backend combining durable group state
(memberships and message history) with real-time room event fan-out.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewResetCmd())

	return cmd
}
