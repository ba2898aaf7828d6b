// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/flickmate/flickmate/pkg/errutil"
)

// ForgetPasswordMessage is returned by ForgetPassword whether or not the
// email belongs to an account.
const ForgetPasswordMessage = "If an account exists for this email, a reset link has been sent."

const msgInvalidResetToken = "invalid or expired token"

// ForgetPassword starts a password reset and returns at once. The lookup,
// the reset writes and the email run in the background, so neither the
// answer nor its latency reveals whether the email is registered. Failures
// are logged.
func (s *Service) ForgetPassword(ctx context.Context, email string) string {
	s.detach(ctx, func(ctx context.Context) {
		err := s.requestReset(ctx, email)
		recordOperation("forget_password", err)
		if err != nil {
			errutil.LogError(s.logger, "password reset request failed", err)
		}
	})
	return ForgetPasswordMessage
}

func (s *Service) requestReset(ctx context.Context, email string) error {
	account, err := s.dir.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return err
	}
	reset, err := NewPasswordReset(account.ID, hash, s.now().Add(ResetTokenExpiry))
	if err != nil {
		return err
	}

	resets := s.dir.Resets()
	if err := resets.DeleteByAccount(ctx, account.ID); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "delete previous resets").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	if err := resets.Create(ctx, reset); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "create reset").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.sendAsync(ctx, account.Email, resetEmail, map[string]any{
		"Name":    account.Name,
		"Link":    tokenLink(s.links.ResetPassword, token),
		"Minutes": int(ResetTokenExpiry / time.Minute),
	})
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes
// every session of the account.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) (err error) {
	defer func() { recordOperation("reset_password", err) }()

	if rawToken == "" {
		return oops.Code(CodeBadRequest).Errorf(msgInvalidResetToken)
	}
	reset, err := s.dir.Resets().GetByTokenHash(ctx, HashResetToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeBadRequest).Errorf(msgInvalidResetToken)
		}
		return oops.Code("RESET_FAILED").
			With("operation", "get reset by token hash").
			Wrap(err)
	}
	if reset.IsExpiredAt(s.now()) {
		return oops.Code(CodeBadRequest).
			With("reset_id", reset.ID.String()).
			Errorf(msgInvalidResetToken)
	}

	newHash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.retryOnConflict(ctx, func(ctx context.Context) error {
		return s.dir.WithTransaction(ctx, func(ctx context.Context, repos Repositories) error {
			if err := repos.Resets().Delete(ctx, reset.ID); err != nil {
				if errors.Is(err, ErrNotFound) {
					return oops.Code(CodeBadRequest).
						With("reset_id", reset.ID.String()).
						Errorf(msgInvalidToken)
				}
				return err
			}
			if err := repos.Resets().DeleteByAccount(ctx, reset.AccountID); err != nil {
				return err
			}
			account, err := repos.Accounts().GetByID(ctx, reset.AccountID)
			if err != nil {
				return err
			}
			account.PasswordHash = &newHash
			account.RefreshTokenHashes = nil
			return repos.Accounts().Update(ctx, account)
		})
	})
	if err != nil {
		if KindOf(err) == KindBadRequest {
			return err
		}
		return oops.Code("RESET_FAILED").
			With("operation", "apply reset").
			With("account_id", reset.AccountID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset", "account_id", reset.AccountID.String())
	return nil
}

// tokenLink adds token as the "token" query parameter of base.
func tokenLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
