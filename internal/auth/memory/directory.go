// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

// Package memory provides an in-process auth.Directory for single-node
// deployments and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/flickmate/flickmate/internal/auth"
)

// Directory is an in-memory auth.Directory. Transactions work on a private
// copy of the state and swap it in on commit; the lock is held for the whole
// transaction, so fn must only use the repositories it is handed.
type Directory struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// Option customizes a Directory.
type Option func(*Directory)

// WithClock overrides the time source used for expiry and timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

// New creates an empty Directory.
func New(opts ...Option) *Directory {
	d := &Directory{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Accounts returns the account repository.
func (d *Directory) Accounts() auth.AccountRepository { return accountRepo{view{dir: d}} }

// Resets returns the password reset repository.
func (d *Directory) Resets() auth.PasswordResetRepository { return resetRepo{view{dir: d}} }

// EmailChanges returns the email change repository.
func (d *Directory) EmailChanges() auth.EmailChangeRepository { return changeRepo{view{dir: d}} }

// WithTransaction runs fn on a copy of the state and commits it when fn
// returns nil.
func (d *Directory) WithTransaction(ctx context.Context, fn func(ctx context.Context, repos auth.Repositories) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := d.st.clone()
	if err := fn(ctx, view{tx: tx, now: d.now}); err != nil {
		return err
	}
	d.st = tx
	return nil
}

type state struct {
	accounts map[ulid.ULID]*auth.Account
	resets   map[ulid.ULID]*auth.PasswordReset
	changes  map[ulid.ULID]*auth.EmailChangeRequest
}

func newState() *state {
	return &state{
		accounts: make(map[ulid.ULID]*auth.Account),
		resets:   make(map[ulid.ULID]*auth.PasswordReset),
		changes:  make(map[ulid.ULID]*auth.EmailChangeRequest),
	}
}

func (st *state) clone() *state {
	c := newState()
	for id, a := range st.accounts {
		c.accounts[id] = copyAccount(a)
	}
	for id, r := range st.resets {
		r := *r
		c.resets[id] = &r
	}
	for id, r := range st.changes {
		r := *r
		c.changes[id] = &r
	}
	return c
}

// view is either the live state behind the directory lock or a transaction copy.
type view struct {
	dir *Directory
	tx  *state
	now func() time.Time
}

func (v view) Accounts() auth.AccountRepository         { return accountRepo{v} }
func (v view) Resets() auth.PasswordResetRepository     { return resetRepo{v} }
func (v view) EmailChanges() auth.EmailChangeRepository { return changeRepo{v} }

func (v view) with(fn func(st *state, now time.Time) error) error {
	if v.tx != nil {
		return fn(v.tx, v.now())
	}
	v.dir.mu.Lock()
	defer v.dir.mu.Unlock()
	return fn(v.dir.st, v.dir.now())
}

func copyAccount(a *auth.Account) *auth.Account {
	c := *a
	c.PasswordHash = copyString(a.PasswordHash)
	c.ProviderID = copyString(a.ProviderID)
	c.AvatarURL = copyString(a.AvatarURL)
	c.RefreshTokenHashes = slices.Clone(a.RefreshTokenHashes)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func accountNotFound(key string, value any) error {
	return oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

// Compile-time interface check.
var _ auth.Directory = (*Directory)(nil)
