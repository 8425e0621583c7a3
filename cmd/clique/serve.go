// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/cliquechat/clique/internal/chat"
	"github.com/cliquechat/clique/internal/gateway"
	"github.com/cliquechat/clique/internal/logging"
	"github.com/cliquechat/clique/internal/observability"
	"github.com/cliquechat/clique/internal/store"
	"github.com/cliquechat/clique/pkg/errutil"
)

// Default values for serve command flags.
const (
	defaultListenAddr  = ":4300"
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultStore       = storeKindFile
	defaultLogFormat   = "json"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Long: `Start the chat server: the line-oriented TCP gateway over the
group-chat core, plus the metrics/health HTTP endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd.Flags(), cfg); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.ListenAddr, "listen-addr", defaultListenAddr, "gateway TCP listen address")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().StringVar(&cfg.DataDir, "data-dir", "", "data directory (default: XDG_DATA_HOME/clique)")
	cmd.Flags().StringVar(&cfg.Store, "store", defaultStore, "group store backend (file or postgres)")
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", "", "PostgreSQL URL (default: DATABASE_URL env)")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log format (json or text)")

	return cmd
}

// runServe starts the server process and blocks until shutdown.
func runServe(ctx context.Context, cfg *serveConfig) error {
	logging.SetDefault("clique", version, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	groupStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := chat.NewRoomRegistry()
	broadcaster := chat.NewBroadcaster(registry)
	service := chat.NewService(chat.ServiceConfig{
		Store:       groupStore,
		Registry:    registry,
		Broadcaster: broadcaster,
	})

	var ready atomic.Bool

	var obsErrCh <-chan error
	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, ready.Load)
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
	}

	gw := gateway.NewServer(cfg.ListenAddr, service)
	gwErrCh := make(chan error, 1)
	go func() {
		gwErrCh <- gw.Run(ctx)
	}()

	ready.Store(true)
	slog.Info("clique server started",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store,
		"metrics_addr", cfg.MetricsAddr,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-gwErrCh:
		if err != nil {
			errutil.LogError(slog.Default(), "gateway failed", err)
		}
	case err := <-obsErrCh:
		if err != nil {
			errutil.LogError(slog.Default(), "observability server failed", err)
		}
	}

	ready.Store(false)
	if obsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogError(slog.Default(), "failed to stop observability server", err)
		}
	}

	slog.Info("clique server stopped")
	return nil
}

// openStore opens the configured GroupStore and returns it with a close func.
// The postgres connect is retried with fibonacci backoff: the database is
// commonly still starting when the server comes up.
func openStore(ctx context.Context, cfg *serveConfig) (chat.GroupStore, func(), error) {
	switch cfg.Store {
	case storeKindPostgres:
		var pg *store.PostgresStore
		backoff := retry.WithMaxRetries(5, retry.NewFibonacci(time.Second))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			var connectErr error
			pg, connectErr = store.NewPostgresStore(ctx, cfg.databaseURL())
			if connectErr != nil {
				slog.Warn("database not reachable, retrying", "error", connectErr)
				return retry.RetryableError(connectErr)
			}
			return nil
		})
		if err != nil {
			return nil, nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
		}
		return pg, pg.Close, nil

	default:
		fileStore, err := store.OpenFileStore(cfg.groupsPath())
		if err != nil {
			return nil, nil, err
		}
		slog.Info("file store opened", "path", fileStore.Path())
		return fileStore, func() {}, nil
	}
}
