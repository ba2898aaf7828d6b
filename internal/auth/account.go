// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxSessions is the number of refresh tokens an account may hold at once.
// Refresh verification scans the list linearly, so raising this needs an
// indexed lookup first.
const MaxSessions = 5

// Account is a credential record.
type Account struct {
	ID                 ulid.ULID
	Name               string
	Email              string
	PasswordHash       *string // nil for OAuth-only accounts
	ProviderID         *string
	AvatarURL          *string
	RefreshTokenHashes []string // oldest first
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewAccount creates a validated Account.
// At least one of passwordHash and providerID must be set.
func NewAccount(name, email string, passwordHash, providerID *string) (*Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, oops.Code("ACCOUNT_INVALID_NAME").Errorf("name cannot be empty")
	}
	if passwordHash == nil && providerID == nil {
		return nil, oops.Code("ACCOUNT_NO_CREDENTIAL").
			Errorf("account needs a password hash or a provider id")
	}

	now := time.Now()
	return &Account{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		ProviderID:   providerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasPassword reports whether the account can sign in with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil
}

// Public returns the client-facing view of the account.
func (a *Account) Public() PublicUser {
	return PublicUser{
		ID:          a.ID.String(),
		Name:        a.Name,
		Email:       a.Email,
		AvatarURL:   a.AvatarURL,
		HasPassword: a.HasPassword(),
		CreatedAt:   a.CreatedAt,
	}
}

// PublicUser is the account view returned to clients.
type PublicUser struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
	HasPassword bool      `json:"hasPassword"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// GetByID retrieves an account by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by exact email. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByProviderID retrieves an account by its OAuth subject.
	GetByProviderID(ctx context.Context, providerID string) (*Account, error)

	// Create stores a new account. Returns ErrDuplicate when the email or
	// provider id is taken.
	Create(ctx context.Context, account *Account) error

	// Update persists account if its stored version still equals
	// account.Version, then increments account.Version.
	// Returns ErrVersionConflict when the stored version moved on.
	Update(ctx context.Context, account *Account) error
}

// Repositories groups the repositories sharing one transactional scope.
type Repositories interface {
	Accounts() AccountRepository
	Resets() PasswordResetRepository
	EmailChanges() EmailChangeRepository
}

// Directory is the credential store. Repositories returned directly run
// outside any transaction.
type Directory interface {
	Repositories

	// WithTransaction runs fn against repositories bound to one transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
