// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/config"
	"github.com/flickmate/flickmate/internal/mail"
	"github.com/flickmate/flickmate/internal/observability"
	"github.com/flickmate/flickmate/pkg/errutil"
)

type fakeObservabilityServer struct {
	startErr error
	errCh    chan error
	ready    observability.ReadinessChecker
	started  atomic.Bool
	stopped  atomic.Bool
}

func (f *fakeObservabilityServer) Start() (<-chan error, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started.Store(true)
	return f.errCh, nil
}

func (f *fakeObservabilityServer) Stop(context.Context) error {
	f.stopped.Store(true)
	return nil
}

func (f *fakeObservabilityServer) Addr() string                    { return "127.0.0.1:0" }
func (f *fakeObservabilityServer) Metrics() *observability.Metrics { return nil }

func serveConfig() config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.HTTP.ShutdownTimeout = 2 * time.Second
	cfg.Database.Driver = config.DriverMemory
	cfg.Redis.Enabled = false
	cfg.Hashing.BcryptCost = auth.MinBcryptCost
	cfg.Tokens.AccessSecret = "access-secret"
	cfg.Tokens.RefreshSecret = "refresh-secret"
	cfg.Tokens.PurposeSecret = "purpose-secret"
	cfg.Metrics.Addr = "127.0.0.1:0"
	return cfg
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "serve"}
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd, out
}

// startServe runs serve in the background and waits until the API answers.
func startServe(t *testing.T, cfg *config.Config, obs *fakeObservabilityServer) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addrCh := make(chan string, 1)
	deps := &ServeDeps{
		ListenerFactory: func(network, address string) (net.Listener, error) {
			ln, err := net.Listen(network, address)
			if err == nil {
				addrCh <- ln.Addr().String()
			}
			return ln, err
		},
		ObservabilityServerFactory: func(_ string, ready observability.ReadinessChecker, _ *slog.Logger) ObservabilityServer {
			obs.ready = ready
			return obs
		},
	}

	cmd, _ := testCommand()
	errCh := make(chan error, 1)
	go func() { errCh <- runServeWithDeps(ctx, cfg, cmd, deps) }()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not open a listener")
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/auth/me")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	return cancel, errCh
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
		return nil
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	cfg := serveConfig()
	cfg.Tokens.PurposeSecret = ""
	cmd, _ := testCommand()

	err := runServeWithDeps(context.Background(), &cfg, cmd, nil)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestServe_StartsAndShutsDownOnCancel(t *testing.T) {
	cfg := serveConfig()
	obs := &fakeObservabilityServer{errCh: make(chan error, 1)}

	cancel, done := startServe(t, &cfg, obs)
	assert.True(t, obs.started.Load())
	require.NotNil(t, obs.ready)
	assert.True(t, obs.ready(), "memory directory is always ready")

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.True(t, obs.stopped.Load())
}

func TestServe_ObservabilityFailureTriggersShutdown(t *testing.T) {
	cfg := serveConfig()
	obs := &fakeObservabilityServer{errCh: make(chan error, 1)}

	_, done := startServe(t, &cfg, obs)
	obs.errCh <- errors.New("metrics listener died")

	require.NoError(t, waitDone(t, done))
	assert.True(t, obs.stopped.Load())
}

func TestServe_ObservabilityStartFailure(t *testing.T) {
	cfg := serveConfig()
	obs := &fakeObservabilityServer{startErr: errors.New("address in use")}
	cmd, _ := testCommand()

	err := runServeWithDeps(context.Background(), &cfg, cmd, &ServeDeps{
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
			return obs
		},
	})
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_START_FAILED")
}

func TestServe_ListenFailure(t *testing.T) {
	cfg := serveConfig()
	cfg.Metrics.Addr = ""
	cmd, _ := testCommand()

	err := runServeWithDeps(context.Background(), &cfg, cmd, &ServeDeps{
		ListenerFactory: func(string, string) (net.Listener, error) {
			return nil, errors.New("permission denied")
		},
	})
	errutil.AssertErrorCode(t, err, "HTTP_LISTEN_FAILED")
}

func TestServe_DirectoryFailure(t *testing.T) {
	cfg := serveConfig()
	cmd, _ := testCommand()
	opened := errors.New("database unreachable")

	err := runServeWithDeps(context.Background(), &cfg, cmd, &ServeDeps{
		DirectoryOpener: func(context.Context, *config.Config, *slog.Logger) (*Directory, error) {
			return nil, opened
		},
	})
	assert.ErrorIs(t, err, opened)
}

func TestNewMailer(t *testing.T) {
	cfg := serveConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mailer, err := newMailer(&cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &mail.LogSender{}, mailer)

	cfg.SMTP.Enabled = true
	cfg.SMTP.Host = "smtp.example"
	cfg.SMTP.From = "noreply@flickmate.example"
	mailer, err = newMailer(&cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &mail.RetryingSender{}, mailer)
}

func TestNewService_OptionalCollaborators(t *testing.T) {
	cfg := serveConfig()
	cfg.Limits.LoginThrottling = false
	cfg.OAuth.Google = config.GoogleConfig{Enabled: true, ClientID: "id"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir, err := openDirectory(context.Background(), &cfg, logger)
	require.NoError(t, err)
	tokens, err := auth.NewTokenCodec(cfg.TokenConfig())
	require.NoError(t, err)

	_, err = newService(&cfg, dir, tokens, nil, logger)
	errutil.AssertErrorCode(t, err, "OAUTH_CONFIG_INVALID")
}
