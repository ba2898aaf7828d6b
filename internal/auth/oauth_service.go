// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/samber/oops"
)

// OAuthStateBytes is the entropy of a CSRF state value.
const OAuthStateBytes = 32

// ProviderProfile is the identity reported by an OAuth provider.
type ProviderProfile struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// IdentityProvider is an OAuth authorization-code provider.
type IdentityProvider interface {
	// AuthCodeURL returns the consent page URL carrying state.
	AuthCodeURL(state string) string

	// ExchangeCode trades an authorization code for a provider access token.
	ExchangeCode(ctx context.Context, code string) (string, error)

	// FetchProfile reads the profile behind a provider access token.
	FetchProfile(ctx context.Context, providerToken string) (*ProviderProfile, error)
}

// GenerateState returns a random hex-encoded OAuth state value.
func GenerateState() (string, error) {
	b := make([]byte, OAuthStateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("AUTH_STATE_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// CheckOAuthState compares the stored and returned state in constant time.
func CheckOAuthState(expected, got string) error {
	if expected == "" || got == "" ||
		subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return oops.Code(CodeForbidden).Errorf("oauth state mismatch")
	}
	return nil
}

// OAuthStartURL returns the provider consent URL for state.
func (s *Service) OAuthStartURL(state string) (string, error) {
	if s.provider == nil {
		return "", errOAuthDisabled()
	}
	return s.provider.AuthCodeURL(state), nil
}

// OAuthLogin signs in with a provider authorization code. An account is
// matched by provider id, then linked by verified email, then created.
func (s *Service) OAuthLogin(ctx context.Context, code string) (_ *Session, err error) {
	defer func() { recordOperation("oauth_login", err) }()

	if s.provider == nil {
		return nil, errOAuthDisabled()
	}
	if code == "" {
		return nil, oops.Code(CodeBadRequest).Errorf("authorization code is required")
	}

	providerToken, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, upstreamFailed("exchange code", err)
	}
	profile, err := s.provider.FetchProfile(ctx, providerToken)
	if err != nil {
		return nil, upstreamFailed("fetch profile", err)
	}
	if profile.ID == "" || profile.Email == "" {
		return nil, oops.Code(CodeUpstreamFailed).Errorf("identity provider returned an incomplete profile")
	}
	if !profile.EmailVerified {
		return nil, oops.Code(CodeForbidden).
			With("provider_id", profile.ID).
			Errorf("email is not verified with the identity provider")
	}

	var (
		account *Account
		outcome string
	)
	err = s.retryOnConflict(ctx, func(ctx context.Context) error {
		return s.dir.WithTransaction(ctx, func(ctx context.Context, repos Repositories) error {
			var resolveErr error
			account, outcome, resolveErr = resolveProviderAccount(ctx, repos.Accounts(), profile)
			return resolveErr
		})
	})
	if err != nil {
		return nil, oops.Code("AUTH_OAUTH_LOGIN_FAILED").
			With("operation", "resolve account").
			With("provider_id", profile.ID).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "oauth login",
		"account_id", account.ID.String(),
		"outcome", outcome)

	session, err := s.openSession(ctx, account, nil)
	if err != nil {
		return nil, oops.Code("AUTH_OAUTH_LOGIN_FAILED").
			With("operation", "open session").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return session, nil
}

// resolveProviderAccount finds, links or creates the account for profile.
// Linking trusts the provider's verified email as proof of ownership.
func resolveProviderAccount(ctx context.Context, accounts AccountRepository, profile *ProviderProfile) (*Account, string, error) {
	account, err := accounts.GetByProviderID(ctx, profile.ID)
	if err == nil {
		return account, "existing", nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}

	account, err = accounts.GetByEmail(ctx, profile.Email)
	if err == nil {
		providerID := profile.ID
		account.ProviderID = &providerID
		if profile.Picture != "" {
			picture := profile.Picture
			account.AvatarURL = &picture
		}
		if err := accounts.Update(ctx, account); err != nil {
			return nil, "", err
		}
		return account, "linked", nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name, _, _ = strings.Cut(profile.Email, "@")
	}
	providerID := profile.ID
	account, err = NewAccount(name, profile.Email, nil, &providerID)
	if err != nil {
		return nil, "", err
	}
	if profile.Picture != "" {
		picture := profile.Picture
		account.AvatarURL = &picture
	}
	if err := accounts.Create(ctx, account); err != nil {
		return nil, "", err
	}
	return account, "created", nil
}

func upstreamFailed(operation string, err error) error {
	return oops.Code(CodeUpstreamFailed).
		With("operation", operation).
		With("reason", err.Error()).
		Errorf("identity provider request failed")
}

func errOAuthDisabled() error {
	return oops.Code(CodeForbidden).Errorf("oauth login is not enabled")
}
