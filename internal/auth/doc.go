// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

// Package auth provides the credential and session core of Flickmate.
//
// # Domain Types
//
// Domain types (Account, PasswordReset, EmailChangeRequest) should be created
// using their respective constructors:
//   - NewAccount - creates an Account with a password hash or provider id
//   - NewPasswordReset - creates a PasswordReset with validated account and expiry
//   - NewEmailChangeRequest - creates an EmailChangeRequest for a new address
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Tokens
//
// TokenCodec signs access, refresh and purpose tokens, each kind with its own
// secret. Refresh tokens are stored only as salted hashes inside the account,
// at most MaxSessions of them. Presenting a refresh token that was already
// rotated out revokes every session of the account.
//
// # Services
//
// Service coordinates the flows: login, refresh rotation, OTP-gated
// registration, logout, password reset and change, email change and OAuth
// login. Service is created with NewService, which validates dependencies.
// Account writes use optimistic versioning and are retried on conflict.
package auth
