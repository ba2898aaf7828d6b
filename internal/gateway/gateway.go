// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

// Package gateway authenticates inbound requests from their bearer token.
package gateway

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/flickmate/flickmate/internal/auth"
)

// Identity is the caller attached to a request.
type Identity = auth.Identity

// Verifier checks signed tokens. Satisfied by *auth.TokenCodec.
type Verifier interface {
	Verify(token string, kind auth.TokenKind) (*auth.Claims, error)
}

// RevocationChecker reports blacklisted access tokens. Satisfied by
// *revocation.Store.
type RevocationChecker interface {
	IsBlacklisted(ctx context.Context, accessToken string) bool
}

// Options toggle gateway capabilities.
type Options struct {
	// RevocationChecking consults the RevocationChecker before verifying.
	RevocationChecking bool
}

// Authenticator turns an Authorization header into an Identity.
type Authenticator struct {
	tokens  Verifier
	checker RevocationChecker
	opts    Options
	logger  *slog.Logger
}

// NewAuthenticator creates an Authenticator. checker may be nil only when
// revocation checking is off.
func NewAuthenticator(tokens Verifier, checker RevocationChecker, opts Options, logger *slog.Logger) (*Authenticator, error) {
	if tokens == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	if opts.RevocationChecking && checker == nil {
		return nil, oops.Errorf("revocation checker is required when revocation checking is enabled")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{tokens: tokens, checker: checker, opts: opts, logger: logger}, nil
}

// Authenticate validates a "Bearer <token>" header value.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Identity, error) {
	token, ok := bearerToken(header)
	if !ok {
		return Identity{}, oops.Code(auth.CodeUnauthorized).Errorf("missing bearer token")
	}
	if a.opts.RevocationChecking && a.checker.IsBlacklisted(ctx, token) {
		return Identity{}, oops.Code(auth.CodeUnauthorized).Errorf("token revoked")
	}

	claims, err := a.tokens.Verify(token, auth.TokenAccess)
	if err != nil {
		return Identity{}, err
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return Identity{}, err
	}

	identity := Identity{
		AccountID:     accountID,
		Email:         claims.Email,
		Token:         token,
		Authenticated: true,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched without regard to case.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type contextKey struct{}

// WithIdentity returns ctx carrying identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// FromContext returns the identity in ctx, or an unauthenticated identity.
func FromContext(ctx context.Context) Identity {
	identity, _ := ctx.Value(contextKey{}).(Identity)
	return identity
}
