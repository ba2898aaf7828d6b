// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/flickmate/flickmate/internal/auth"
)

const accountColumns = `id, name, email, password_hash, provider_id, avatar_url,
	refresh_token_hashes, version, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	q querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(q querier) *AccountRepository {
	return &AccountRepository{q: q}
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())
	return r.get(row, "id", id.String())
}

// GetByEmail retrieves an account by exact email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return r.get(row, "email", email)
}

// GetByProviderID retrieves an account by OAuth subject.
func (r *AccountRepository) GetByProviderID(ctx context.Context, providerID string) (*auth.Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE provider_id = $1`, providerID)
	return r.get(row, "provider_id", providerID)
}

func (r *AccountRepository) get(row pgx.Row, key, value string) (*auth.Account, error) {
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	return account, err
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		account.ID.String(),
		account.Name,
		account.Email,
		account.PasswordHash,
		account.ProviderID,
		account.AvatarURL,
		hashesOrEmpty(account.RefreshTokenHashes),
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if constraint := uniqueViolation(err); constraint != "" {
			return oops.Code("ACCOUNT_DUPLICATE").With("constraint", constraint).Wrap(auth.ErrDuplicate)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").With("account_id", account.ID.String()).Wrap(err)
	}
	return nil
}

// Update persists account when the stored version matches account.Version.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	now := time.Now()
	result, err := r.q.Exec(ctx, `
		UPDATE accounts SET
			name = $3, email = $4, password_hash = $5, provider_id = $6,
			avatar_url = $7, refresh_token_hashes = $8,
			version = version + 1, updated_at = $9
		WHERE id = $1 AND version = $2
	`,
		account.ID.String(),
		account.Version,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.ProviderID,
		account.AvatarURL,
		hashesOrEmpty(account.RefreshTokenHashes),
		now,
	)
	if err != nil {
		if constraint := uniqueViolation(err); constraint != "" {
			return oops.Code("ACCOUNT_DUPLICATE").With("constraint", constraint).Wrap(auth.ErrDuplicate)
		}
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", account.ID.String()).Wrap(err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`,
			account.ID.String()).Scan(&exists)
		if err != nil {
			return oops.Code("ACCOUNT_UPDATE_FAILED").With("account_id", account.ID.String()).Wrap(err)
		}
		if !exists {
			return oops.Code("ACCOUNT_NOT_FOUND").With("id", account.ID.String()).Wrap(auth.ErrNotFound)
		}
		return oops.Code("ACCOUNT_VERSION_CONFLICT").
			With("account_id", account.ID.String()).
			With("expected_version", account.Version).
			Wrap(auth.ErrVersionConflict)
	}

	account.Version++
	account.UpdatedAt = now
	return nil
}

// hashesOrEmpty keeps the NOT NULL array column from receiving NULL.
func hashesOrEmpty(hashes []string) []string {
	if hashes == nil {
		return []string{}
	}
	return hashes
}

// scanAccount scans a single row. pgx.ErrNoRows is returned unwrapped.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr   string
		account auth.Account
	)
	err := row.Scan(
		&idStr,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&account.ProviderID,
		&account.AvatarURL,
		&account.RefreshTokenHashes,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers attach lookup context
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").With("operation", "scan account").Wrap(err)
	}

	account.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	return &account, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
