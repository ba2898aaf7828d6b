// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"errors"
	"strings"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by AccountRepository.Update when the stored
// account changed since it was read.
var ErrVersionConflict = errors.New("account version conflict")

// ErrDuplicate is returned by repositories when a unique constraint
// (email, provider id) rejects a write.
var ErrDuplicate = errors.New("duplicate value")

// Error codes surfaced to callers. Codes are stable; messages may change.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUseOAuth           = "AUTH_USE_OAUTH"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeTokenExpired       = "AUTH_TOKEN_EXPIRED"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeSessionRevoked     = "AUTH_SESSION_REVOKED"
	CodeConflict           = "AUTH_CONFLICT"
	CodeBadRequest         = "AUTH_BAD_REQUEST"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodePasswordTooLong    = "AUTH_PASSWORD_TOO_LONG"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeTooManyAttempts    = "AUTH_TOO_MANY_ATTEMPTS"
	CodeUpstreamFailed     = "AUTH_UPSTREAM_FAILED"
)

// Kind groups error codes into the categories callers act on.
type Kind int

// Error kinds. KindInternal covers every uncoded or unknown error.
const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindUseOAuth
	KindUnauthorized
	KindConflict
	KindBadRequest
	KindForbidden
	KindNotFound
	KindTooManyAttempts
	KindUpstream
)

var kindByCode = map[string]Kind{
	CodeInvalidCredentials: KindInvalidCredentials,
	CodeUseOAuth:           KindUseOAuth,
	CodeUnauthorized:       KindUnauthorized,
	CodeTokenExpired:       KindUnauthorized,
	CodeTokenInvalid:       KindUnauthorized,
	CodeSessionRevoked:     KindUnauthorized,
	CodeConflict:           KindConflict,
	CodeBadRequest:         KindBadRequest,
	CodeEmptyPassword:      KindBadRequest,
	CodePasswordTooLong:    KindBadRequest,
	CodeForbidden:          KindForbidden,
	CodeNotFound:           KindNotFound,
	CodeTooManyAttempts:    KindTooManyAttempts,
	CodeUpstreamFailed:     KindUpstream,
}

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUseOAuth:
		return "use_oauth"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindTooManyAttempts:
		return "too_many_attempts"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// KindOf classifies err by its oops code. A repository ErrDuplicate is
// KindConflict. An ErrVersionConflict that survived the update retries is
// KindInternal, like everything else without a known code.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if errors.Is(err, ErrDuplicate) {
		return KindConflict
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	code, _ := oopsErr.Code().(string) //nolint:errcheck // non-string codes are treated as unknown
	if kind, found := kindByCode[code]; found {
		return kind
	}
	return KindInternal
}

// PublicMessage returns the message safe to show a client for err.
// Internal errors never expose their detail.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicate):
		if duplicateOnEmail(err) {
			return msgEmailInUse
		}
		return msgAlreadyExists
	case KindOf(err) == KindInternal:
		return "internal server error"
	default:
		return err.Error()
	}
}

// duplicateOnEmail reports whether the unique violation behind err names the
// email column. Postgres repositories attach "constraint", memory ones "field".
func duplicateOnEmail(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	for _, key := range []string{"constraint", "field"} {
		if value, ok := oopsErr.Context()[key].(string); ok && strings.Contains(value, "email") {
			return true
		}
	}
	return false
}

// Public error messages. These are what clients see; internal detail goes in
// the oops context.
const (
	msgInvalidCredentials = "invalid email or password"
	msgUseOAuth           = "this account signs in with Google"
	msgSessionRevoked     = "refresh token revoked, all sessions invalidated"
	msgInvalidToken       = "invalid token"
	msgInvalidOTP         = "invalid or expired verification code"
	msgEmailInUse         = "email is already in use"
	msgAlreadyExists      = "resource already exists"
)
