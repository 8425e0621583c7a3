// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/cliquechat/clique/internal/logging"
)

// NewResetCmd creates the reset subcommand.
func NewResetCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard all groups and messages",
		Long: `Discard all groups, memberships and message history from the
configured store. This cannot be undone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd.Flags(), cfg); err != nil {
				return err
			}
			return runReset(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.ListenAddr, "listen-addr", defaultListenAddr, "unused; accepted for config compatibility")
	cmd.Flags().StringVar(&cfg.DataDir, "data-dir", "", "data directory (default: XDG_DATA_HOME/clique)")
	cmd.Flags().StringVar(&cfg.Store, "store", defaultStore, "group store backend (file or postgres)")
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", "", "PostgreSQL URL (default: DATABASE_URL env)")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", defaultMetricsAddr, "unused; accepted for config compatibility")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log format (json or text)")

	return cmd
}

func runReset(cmd *cobra.Command, cfg *serveConfig) error {
	logging.SetDefault("clique", version, cfg.LogFormat)

	ctx := cmd.Context()
	groupStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := groupStore.ResetAll(ctx); err != nil {
		return err
	}
	cmd.Println("All groups and messages have been reset")
	return nil
}
