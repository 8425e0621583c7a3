// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/cliquechat/clique/internal/xdg"
)

// Store kinds selectable via configuration.
const (
	storeKindFile     = "file"
	storeKindPostgres = "postgres"
)

// serveConfig holds configuration for the serve and reset commands.
// Values are layered: flag defaults, then the YAML config file, then
// explicitly set command-line flags.
type serveConfig struct {
	ListenAddr  string `koanf:"listen-addr"`
	MetricsAddr string `koanf:"metrics-addr"`
	DataDir     string `koanf:"data-dir"`
	Store       string `koanf:"store"`
	DatabaseURL string `koanf:"database-url"`
	LogFormat   string `koanf:"log-format"`
}

// Validate checks that the configuration is valid.
func (cfg *serveConfig) Validate() error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen-addr is required")
	}
	if cfg.Store != storeKindFile && cfg.Store != storeKindPostgres {
		return fmt.Errorf("store must be %q or %q, got %q", storeKindFile, storeKindPostgres, cfg.Store)
	}
	if cfg.Store == storeKindPostgres && cfg.DatabaseURL == "" && os.Getenv("DATABASE_URL") == "" {
		return fmt.Errorf("database-url (or DATABASE_URL) is required for the postgres store")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", cfg.LogFormat)
	}
	return nil
}

// databaseURL returns the configured database URL, falling back to the
// DATABASE_URL environment variable.
func (cfg *serveConfig) databaseURL() string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	return os.Getenv("DATABASE_URL")
}

// groupsPath returns the file store location, defaulting the data dir to
// XDG_DATA_HOME/clique.
func (cfg *serveConfig) groupsPath() string {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = xdg.DataDir()
	}
	return filepath.Join(dataDir, "groups.json")
}

// loadConfig layers the optional YAML config file and the command-line flags
// into cfg. An explicitly passed --config that does not exist is an error; the
// default config location is skipped silently when absent.
func loadConfig(flags *pflag.FlagSet, cfg *serveConfig) error {
	k := koanf.New(".")

	path := configFile
	explicit := path != ""
	if path == "" {
		path = filepath.Join(xdg.ConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("operation", "merge flags").Wrap(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal config").Wrap(err)
	}

	return cfg.Validate()
}
