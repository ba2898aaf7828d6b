// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/samber/oops"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/auth/memory"
	"github.com/flickmate/flickmate/internal/auth/postgres"
	"github.com/flickmate/flickmate/internal/config"
	"github.com/flickmate/flickmate/internal/observability"
	"github.com/flickmate/flickmate/internal/store"
)

// readyTimeout bounds the database ping behind the readiness check.
const readyTimeout = 2 * time.Second

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer with the auth and revocation metrics
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// DirectoryOpener opens the account store.
	// Default: openDirectory
	DirectoryOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Directory, error)
}

// ObservabilityServer is the subset of *observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Directory is an opened account store.
type Directory struct {
	auth.Directory
	Ready observability.ReadinessChecker
	Close func()
}

// openDirectory connects to the configured account store. With
// database.auto_migrate set, pending postgres migrations run first.
func openDirectory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Directory, error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("using in-memory account store, accounts are lost on exit")
		return &Directory{
			Directory: memory.New(),
			Ready:     func() bool { return true },
			Close:     func() {},
		}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database.URL, logger); err != nil {
			return nil, err
		}
	}

	pool, err := store.Connect(ctx, cfg.PoolConfig(), logger)
	if err != nil {
		return nil, oops.With("operation", "open account store").Wrap(err)
	}
	return &Directory{
		Directory: postgres.NewDirectory(pool),
		Ready:     store.Ready(pool, readyTimeout),
		Close:     pool.Close,
	}, nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	return migrator.Up()
}
