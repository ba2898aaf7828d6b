// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/config"
	"github.com/flickmate/flickmate/internal/gateway"
	"github.com/flickmate/flickmate/internal/httpapi"
	"github.com/flickmate/flickmate/internal/mail"
	"github.com/flickmate/flickmate/internal/oauth"
	"github.com/flickmate/flickmate/internal/observability"
	"github.com/flickmate/flickmate/internal/revocation"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the HTTP authentication API together with the metrics and
health server. SIGINT or SIGTERM triggers a graceful shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), &cfg, cmd, nil)
		},
	}

	cmd.Flags().String("addr", defaults.HTTP.Addr, "API listen address")
	cmd.Flags().String("env", defaults.Environment, "environment (development or production)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("metrics-addr", defaults.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")

	return cmd
}

// runServeWithDeps runs the API until a signal arrives, ctx ends or a
// server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, logger, auth.RegisterMetrics, revocation.RegisterMetrics)
		}
	}
	if deps.DirectoryOpener == nil {
		deps.DirectoryOpener = openDirectory
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger := commandLogger(cmd, cfg)
	logger.Info("starting auth service",
		"addr", cfg.HTTP.Addr,
		"environment", cfg.Environment,
		"database_driver", cfg.Database.Driver,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dir, err := deps.DirectoryOpener(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dir.Close()

	kv, err := revocation.New(ctx, cfg.RevocationConfig(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			logger.Warn("failed to close revocation store", "error", closeErr)
		}
	}()

	tokens, err := auth.NewTokenCodec(cfg.TokenConfig())
	if err != nil {
		return err
	}
	svc, err := newService(cfg, dir, tokens, kv, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	authenticator, err := gateway.NewAuthenticator(tokens, kv, gateway.Options{RevocationChecking: cfg.Redis.Enabled}, logger)
	if err != nil {
		return oops.With("operation", "create gateway").Wrap(err)
	}

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, dir.Ready, logger)
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	api, err := httpapi.New(cfg.HTTPConfig(), httpapi.Deps{
		Sessions: svc,
		Gateway:  authenticator,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}

	ln, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if serveErr := api.Serve(ln); serveErr != nil {
			errChan <- serveErr
		}
	}()

	cmd.Println("Auth service started")
	logger.Info("auth service ready", "addr", ln.Addr().String())

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case runErr = <-errChan:
		logger.Error("api server failed", "error", runErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	stopObservability(obsServer, logger)

	logger.Info("shutdown complete")
	return runErr
}

func newService(cfg *config.Config, dir auth.Directory, tokens *auth.TokenCodec, kv *revocation.Store, logger *slog.Logger) (*auth.Service, error) {
	passwords, err := auth.NewBcryptHasher(cfg.Hashing.BcryptCost)
	if err != nil {
		return nil, err
	}

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := auth.ServiceDeps{
		Directory:   dir,
		Tokens:      tokens,
		Passwords:   passwords,
		Mailer:      mailer,
		Revoker:     kv,
		Links:       cfg.AuthLinks(),
		Logger:      logger,
		MailTimeout: cfg.Limits.MailTimeout,
	}

	if cfg.Limits.LoginThrottling {
		limiter, err := auth.NewLoginLimiter(kv, logger)
		if err != nil {
			return nil, err
		}
		deps.Limiter = limiter
	}

	if cfg.OAuth.Google.Enabled {
		google, err := oauth.NewGoogle(cfg.GoogleConfig())
		if err != nil {
			return nil, err
		}
		deps.Provider = google
	}

	return auth.NewService(deps)
}

func newMailer(cfg *config.Config, logger *slog.Logger) (auth.Mailer, error) {
	if !cfg.SMTP.Enabled {
		return mail.NewLogSender(logger), nil
	}
	smtp, err := mail.NewSMTPSender(cfg.MailConfig())
	if err != nil {
		return nil, err
	}
	return mail.NewRetryingSender(smtp, logger, mail.WithAttempts(cfg.SMTP.Attempts)), nil
}

func stopObservability(server ObservabilityServer, logger *slog.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
