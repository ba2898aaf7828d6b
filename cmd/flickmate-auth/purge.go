// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/config"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	return newPurgeCmd(nil)
}

func newPurgeCmd(opener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Directory, error)) *cobra.Command {
	if opener == nil {
		opener = openDirectory
	}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired password resets and email change requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.Driver == config.DriverPostgres {
				if _, err := getDatabaseURL(&cfg); err != nil {
					return err
				}
			}
			logger := commandLogger(cmd, &cfg)

			dir, err := opener(cmd.Context(), &cfg, logger)
			if err != nil {
				return err
			}
			defer dir.Close()

			resets, changes, err := purgeExpired(cmd.Context(), dir)
			if err != nil {
				return err
			}
			logger.Info("expired rows purged", "password_resets", resets, "email_changes", changes)
			cmd.Printf("Removed %d password reset(s) and %d email change request(s)\n", resets, changes)
			return nil
		},
	}
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

// purgeExpired deletes expired reset and email-change rows.
func purgeExpired(ctx context.Context, repos auth.Repositories) (resets, changes int64, err error) {
	resets, err = repos.Resets().DeleteExpired(ctx)
	if err != nil {
		return 0, 0, oops.With("operation", "purge password resets").Wrap(err)
	}
	changes, err = repos.EmailChanges().DeleteExpired(ctx)
	if err != nil {
		return resets, 0, oops.With("operation", "purge email changes").Wrap(err)
	}
	return resets, changes, nil
}
