// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/require"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/auth/authtest"
	"github.com/flickmate/flickmate/internal/auth/memory"
)

// clock is a settable time source shared by the codec, service and directory.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc      *auth.Service
	dir      *memory.Directory
	hasher   *auth.BcryptHasher
	mailer   *authtest.RecordingMailer
	revoker  *authtest.RecordingRevoker
	counter  *authtest.MemoryCounter
	provider *authtest.MockProvider
	clock    *clock
	logs     *bytes.Buffer
}

type harnessOption func(*auth.ServiceDeps, *harness)

func withoutProvider() harnessOption {
	return func(d *auth.ServiceDeps, _ *harness) { d.Provider = nil }
}

// withDirectory puts wrap(memory directory) in front of the service. The
// harness keeps reading the unwrapped directory.
func withDirectory(wrap func(*memory.Directory) auth.Directory) harnessOption {
	return func(d *auth.ServiceDeps, h *harness) { d.Directory = wrap(h.dir) }
}

// conflictingDirectory fails every account update with a version conflict
// once conflict is set.
type conflictingDirectory struct {
	*memory.Directory
	conflict atomic.Bool
	updates  atomic.Int32
}

func (d *conflictingDirectory) Accounts() auth.AccountRepository {
	return conflictingAccounts{AccountRepository: d.Directory.Accounts(), dir: d}
}

func (d *conflictingDirectory) WithTransaction(ctx context.Context, fn func(context.Context, auth.Repositories) error) error {
	return d.Directory.WithTransaction(ctx, func(ctx context.Context, repos auth.Repositories) error {
		return fn(ctx, conflictingRepos{Repositories: repos, dir: d})
	})
}

type conflictingRepos struct {
	auth.Repositories
	dir *conflictingDirectory
}

func (r conflictingRepos) Accounts() auth.AccountRepository {
	return conflictingAccounts{AccountRepository: r.Repositories.Accounts(), dir: r.dir}
}

type conflictingAccounts struct {
	auth.AccountRepository
	dir *conflictingDirectory
}

func (a conflictingAccounts) Update(ctx context.Context, account *auth.Account) error {
	if !a.dir.conflict.Load() {
		return a.AccountRepository.Update(ctx, account)
	}
	a.dir.updates.Add(1)
	return oops.Code("ACCOUNT_VERSION_CONFLICT").
		With("account_id", account.ID.String()).
		Wrap(auth.ErrVersionConflict)
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	// Token expiry has second precision, so start on a whole second.
	clk := &clock{now: time.Now().Truncate(time.Second)}
	hasher, err := auth.NewBcryptHasher(auth.MinBcryptCost)
	require.NoError(t, err)
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  "test-access",
		RefreshSecret: "test-refresh",
		PurposeSecret: "test-purpose",
		Issuer:        "flickmate-test",
	}, auth.WithTokenClock(clk.Now))
	require.NoError(t, err)

	h := &harness{
		dir:      memory.New(memory.WithClock(clk.Now)),
		hasher:   hasher,
		mailer:   &authtest.RecordingMailer{},
		revoker:  &authtest.RecordingRevoker{},
		counter:  authtest.NewMemoryCounter(),
		provider: &authtest.MockProvider{},
		clock:    clk,
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	limiter, err := auth.NewLoginLimiter(h.counter, logger)
	require.NoError(t, err)

	deps := auth.ServiceDeps{
		Directory: h.dir,
		Tokens:    codec,
		Passwords: hasher,
		Mailer:    h.mailer,
		Revoker:   h.revoker,
		Limiter:   limiter,
		Provider:  h.provider,
		Links: auth.Links{
			ResetPassword: "https://app.example/reset-password",
			ChangeEmail:   "https://app.example/change-email",
		},
		Logger:      logger,
		MailTimeout: time.Second,
		Clock:       clk.Now,
	}
	for _, opt := range opts {
		opt(&deps, h)
	}

	h.svc, err = auth.NewService(deps)
	require.NoError(t, err)
	t.Cleanup(h.svc.Close)
	return h
}

// flush waits for best-effort emails.
func (h *harness) flush() {
	h.svc.Close()
}

// register creates a password account through the OTP flow.
func (h *harness) register(t *testing.T, name, email, password string) *auth.Session {
	t.Helper()
	ctx := context.Background()

	token, err := h.svc.SendOTP(ctx, name, email)
	require.NoError(t, err)
	mails := h.mailer.To(email)
	require.NotEmpty(t, mails, "otp email expected")
	code := authtest.OTPCode(mails[len(mails)-1].Body)
	require.NotEmpty(t, code)

	session, err := h.svc.Register(ctx, auth.RegisterInput{
		OTPToken: token,
		OTP:      code,
		Name:     name,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return session
}

func (h *harness) account(t *testing.T, email string) *auth.Account {
	t.Helper()
	account, err := h.dir.Accounts().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return account
}
