// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package postgres

import (
	"context"

	"github.com/samber/oops"

	"github.com/flickmate/flickmate/internal/auth"
)

// Directory implements auth.Directory over a pgx pool.
type Directory struct {
	pool beginner
}

// NewDirectory creates a Directory. pool is usually a *pgxpool.Pool.
func NewDirectory(pool beginner) *Directory {
	return &Directory{pool: pool}
}

// Accounts returns an account repository outside any transaction.
func (d *Directory) Accounts() auth.AccountRepository { return NewAccountRepository(d.pool) }

// Resets returns a reset repository outside any transaction.
func (d *Directory) Resets() auth.PasswordResetRepository { return NewPasswordResetRepository(d.pool) }

// EmailChanges returns an email change repository outside any transaction.
func (d *Directory) EmailChanges() auth.EmailChangeRepository {
	return NewEmailChangeRepository(d.pool)
}

// WithTransaction runs fn inside a single database transaction.
func (d *Directory) WithTransaction(ctx context.Context, fn func(ctx context.Context, repos auth.Repositories) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	if err := fn(ctx, txRepos{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

type txRepos struct {
	q querier
}

func (r txRepos) Accounts() auth.AccountRepository         { return NewAccountRepository(r.q) }
func (r txRepos) Resets() auth.PasswordResetRepository     { return NewPasswordResetRepository(r.q) }
func (r txRepos) EmailChanges() auth.EmailChangeRepository { return NewEmailChangeRepository(r.q) }

var _ auth.Directory = (*Directory)(nil)
