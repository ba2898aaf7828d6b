// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenKind selects the secret and default lifetime used for a token.
type TokenKind string

// Token kinds. Each kind signs with its own secret.
const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
	TokenPurpose TokenKind = "purpose"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultPurposeTTL = 10 * time.Minute
)

// Claims is the payload carried by every token.
type Claims struct {
	Email   string    `json:"email,omitempty"`
	Kind    TokenKind `json:"knd"`
	Purpose string    `json:"purpose,omitempty"`
	OTPHash string    `json:"otp_hash,omitempty"`
	jwt.RegisteredClaims
}

// SubjectClaims returns claims bound to an account.
func SubjectClaims(accountID ulid.ULID, email string) Claims {
	return Claims{
		Email:            email,
		RegisteredClaims: jwt.RegisteredClaims{Subject: accountID.String()},
	}
}

// AccountID parses the subject claim.
func (c *Claims) AccountID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeTokenInvalid).
			With("operation", "parse subject").
			Wrap(err)
	}
	return id, nil
}

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	PurposeSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	PurposeTTL    time.Duration
	Issuer        string
}

// TokenCodec signs and verifies access, refresh and purpose tokens.
type TokenCodec struct {
	keys   map[TokenKind][]byte
	ttls   map[TokenKind]time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption customizes a TokenCodec.
type TokenOption func(*TokenCodec)

// WithTokenClock overrides the time source used for signing and verification.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a TokenCodec. All three secrets are required and must
// differ from each other.
func NewTokenCodec(cfg TokenConfig, opts ...TokenOption) (*TokenCodec, error) {
	secrets := map[TokenKind]string{
		TokenAccess:  cfg.AccessSecret,
		TokenRefresh: cfg.RefreshSecret,
		TokenPurpose: cfg.PurposeSecret,
	}
	seen := make(map[string]TokenKind, len(secrets))
	keys := make(map[TokenKind][]byte, len(secrets))
	for kind, secret := range secrets {
		if secret == "" {
			return nil, oops.Code("AUTH_TOKEN_CONFIG_INVALID").
				With("kind", string(kind)).
				Errorf("%s secret is required", kind)
		}
		if other, dup := seen[secret]; dup {
			return nil, oops.Code("AUTH_TOKEN_CONFIG_INVALID").
				With("kind", string(kind)).
				With("other_kind", string(other)).
				Errorf("%s and %s secrets must differ", kind, other)
		}
		seen[secret] = kind
		keys[kind] = []byte(secret)
	}

	c := &TokenCodec{
		keys: keys,
		ttls: map[TokenKind]time.Duration{
			TokenAccess:  orDefault(cfg.AccessTTL, DefaultAccessTTL),
			TokenRefresh: orDefault(cfg.RefreshTTL, DefaultRefreshTTL),
			TokenPurpose: orDefault(cfg.PurposeTTL, DefaultPurposeTTL),
		},
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// TTL returns the default lifetime for kind.
func (c *TokenCodec) TTL(kind TokenKind) time.Duration {
	return c.ttls[kind]
}

// Sign issues a token of the given kind. A zero ttl uses the kind's default.
// Returns the signed token and its expiry.
func (c *TokenCodec) Sign(claims Claims, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	key, ok := c.keys[kind]
	if !ok {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("kind", string(kind)).
			Errorf("unknown token kind")
	}
	if ttl <= 0 {
		ttl = c.ttls[kind]
	}

	now := c.now()
	claims.Kind = kind
	claims.ID = ulid.Make().String()
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("kind", string(kind)).
			Wrap(err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks the signature, expiry and kind of a token.
// Failures are AUTH_TOKEN_EXPIRED or AUTH_TOKEN_INVALID.
func (c *TokenCodec) Verify(token string, kind TokenKind) (*Claims, error) {
	key, ok := c.keys[kind]
	if !ok || token == "" {
		return nil, oops.Code(CodeTokenInvalid).With("kind", string(kind)).Errorf(msgInvalidToken)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeTokenExpired).With("kind", string(kind)).Errorf("token expired")
		}
		return nil, oops.Code(CodeTokenInvalid).
			With("kind", string(kind)).
			With("reason", err.Error()).
			Errorf(msgInvalidToken)
	}
	if claims.Kind != kind {
		return nil, oops.Code(CodeTokenInvalid).
			With("kind", string(kind)).
			With("claimed_kind", string(claims.Kind)).
			Errorf(msgInvalidToken)
	}
	return claims, nil
}
