// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/flickmate/flickmate/internal/config"
	"github.com/flickmate/flickmate/internal/logging"
)

// serviceName identifies this binary in logs.
const serviceName = "flickmate-auth"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the flickmate-auth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flickmate-auth",
		Short: "Flickmate authentication service",
		Long: `flickmate-auth serves account registration, sign-in and session
management for Flickmate, and maintains the account database.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeCmd())

	return cmd
}

// loadConfig reads the configuration, applying the flags changed on cmd.
// Without --config, the XDG config file is used when present.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(config.ResolvePath(configFile), cmd.Flags())
}

// commandLogger logs to the command's stderr.
func commandLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
}
