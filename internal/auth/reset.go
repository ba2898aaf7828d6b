// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Single-use token configuration.
const (
	ResetTokenBytes   = 32 // 32 bytes = 64 hex chars
	ResetTokenExpiry  = 15 * time.Minute
	EmailChangeExpiry = 15 * time.Minute
)

// PasswordReset represents a pending password reset.
type PasswordReset struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewPasswordReset creates a validated PasswordReset.
func NewPasswordReset(accountID ulid.ULID, tokenHash string, expiresAt time.Time) (*PasswordReset, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &PasswordReset{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpiredAt returns true if the reset has expired at t.
func (r *PasswordReset) IsExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// EmailChangeRequest is a pending email change. An account has at most one.
type EmailChangeRequest struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	NewEmail  string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewEmailChangeRequest creates a validated EmailChangeRequest.
func NewEmailChangeRequest(accountID ulid.ULID, newEmail, tokenHash string, expiresAt time.Time) (*EmailChangeRequest, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if newEmail == "" {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_EMAIL").Errorf("new email cannot be empty")
	}
	if tokenHash == "" {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("EMAIL_CHANGE_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &EmailChangeRequest{
		ID:        ulid.Make(),
		AccountID: accountID,
		NewEmail:  newEmail,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpiredAt returns true if the request has expired at t.
func (r *EmailChangeRequest) IsExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is mailed to the user; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken computes the SHA256 hex digest stored for a single-use token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	// Create stores a new password reset.
	Create(ctx context.Context, reset *PasswordReset) error

	// GetByTokenHash retrieves a reset by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// Delete removes a reset. Returns ErrNotFound when no row was removed.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByAccount removes all resets for an account.
	DeleteByAccount(ctx context.Context, accountID ulid.ULID) error

	// DeleteExpired removes all expired resets.
	DeleteExpired(ctx context.Context) (int64, error)
}

// EmailChangeRepository manages email change request persistence.
type EmailChangeRepository interface {
	// Upsert stores req, replacing any pending request for the same account.
	Upsert(ctx context.Context, req *EmailChangeRequest) error

	// GetByTokenHash retrieves a request by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*EmailChangeRequest, error)

	// Delete removes a request. Returns ErrNotFound when no row was removed.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteExpired removes all expired requests.
	DeleteExpired(ctx context.Context) (int64, error)
}
