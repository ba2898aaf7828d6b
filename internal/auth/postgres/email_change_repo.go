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

// EmailChangeRepository implements auth.EmailChangeRepository using PostgreSQL.
type EmailChangeRepository struct {
	q querier
}

// NewEmailChangeRepository creates a new EmailChangeRepository.
func NewEmailChangeRepository(q querier) *EmailChangeRepository {
	return &EmailChangeRepository{q: q}
}

// Upsert stores req, replacing the account's pending request if any.
func (r *EmailChangeRepository) Upsert(ctx context.Context, req *auth.EmailChangeRequest) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO email_change_requests (id, account_id, new_email, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id) DO UPDATE SET
			id = EXCLUDED.id,
			new_email = EXCLUDED.new_email,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`, req.ID.String(), req.AccountID.String(), req.NewEmail, req.TokenHash, req.ExpiresAt, req.CreatedAt)
	if err != nil {
		if uniqueViolation(err) != "" {
			return oops.Code("EMAIL_CHANGE_DUPLICATE").Wrap(auth.ErrDuplicate)
		}
		return oops.Code("EMAIL_CHANGE_UPSERT_FAILED").
			With("account_id", req.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a request by its token hash.
func (r *EmailChangeRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.EmailChangeRequest, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, account_id, new_email, token_hash, expires_at, created_at
		FROM email_change_requests
		WHERE token_hash = $1
	`, tokenHash)

	var (
		idStr        string
		accountIDStr string
		req          auth.EmailChangeRequest
	)
	err := row.Scan(&idStr, &accountIDStr, &req.NewEmail, &req.TokenHash, &req.ExpiresAt, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("EMAIL_CHANGE_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("EMAIL_CHANGE_SCAN_FAILED").Wrap(err)
	}
	if req.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if req.AccountID, err = ulid.Parse(accountIDStr); err != nil {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_ACCOUNT_ID").With("account_id", accountIDStr).Wrap(err)
	}
	return &req, nil
}

// Delete removes a request.
func (r *EmailChangeRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.q.Exec(ctx, `DELETE FROM email_change_requests WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("EMAIL_CHANGE_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("EMAIL_CHANGE_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired removes all expired requests and returns the count.
func (r *EmailChangeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.q.Exec(ctx, `DELETE FROM email_change_requests WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, oops.Code("EMAIL_CHANGE_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return result.RowsAffected(), nil
}

var _ auth.EmailChangeRepository = (*EmailChangeRepository)(nil)
