// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// EmailChangeResult is the outcome of ChangeEmail. Session and User are nil
// unless the caller is signed in to the changed account.
type EmailChangeResult struct {
	Session *Session
	User    *PublicUser
}

// ChangeEmailRequest starts an email change. Any earlier pending request for
// the account is replaced.
func (s *Service) ChangeEmailRequest(ctx context.Context, accountID ulid.ULID, currentEmail, newEmail string) (err error) {
	defer func() { recordOperation("change_email_request", err) }()

	if newEmail == "" || newEmail == currentEmail {
		return oops.Code(CodeBadRequest).Errorf("new email must differ from the current email")
	}

	accounts := s.dir.Accounts()
	account, err := accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).
				With("account_id", accountID.String()).
				Errorf("account not found")
		}
		return oops.Code("EMAIL_CHANGE_REQUEST_FAILED").
			With("operation", "get account").
			Wrap(err)
	}
	if newEmail == account.Email {
		return oops.Code(CodeBadRequest).Errorf("new email must differ from the current email")
	}

	if _, err := accounts.GetByEmail(ctx, newEmail); err == nil {
		return oops.Code(CodeConflict).Errorf(msgEmailInUse)
	} else if !errors.Is(err, ErrNotFound) {
		return oops.Code("EMAIL_CHANGE_REQUEST_FAILED").
			With("operation", "check email").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return err
	}
	req, err := NewEmailChangeRequest(accountID, newEmail, hash, s.now().Add(EmailChangeExpiry))
	if err != nil {
		return err
	}
	if err := s.dir.EmailChanges().Upsert(ctx, req); err != nil {
		return oops.Code("EMAIL_CHANGE_REQUEST_FAILED").
			With("operation", "upsert request").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	s.sendAsync(ctx, account.Email, emailChangeNoticeEmail, map[string]any{
		"Name":     account.Name,
		"NewEmail": newEmail,
	})
	s.sendAsync(ctx, newEmail, emailChangeVerifyEmail, map[string]any{
		"Name":    account.Name,
		"Link":    tokenLink(s.links.ChangeEmail, token),
		"Minutes": int(EmailChangeExpiry / time.Minute),
	})
	return nil
}

// ChangeEmail consumes an email change token. Every session of the account
// is revoked. A caller signed in to that account gets a fresh session; any
// other caller gets an empty result and must sign in again.
func (s *Service) ChangeEmail(ctx context.Context, rawToken string, caller Identity) (_ *EmailChangeResult, err error) {
	defer func() { recordOperation("change_email", err) }()

	if rawToken == "" {
		return nil, oops.Code(CodeBadRequest).Errorf(msgInvalidResetToken)
	}
	req, err := s.dir.EmailChanges().GetByTokenHash(ctx, HashResetToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeBadRequest).Errorf(msgInvalidResetToken)
		}
		return nil, oops.Code("EMAIL_CHANGE_FAILED").
			With("operation", "get request by token hash").
			Wrap(err)
	}
	if req.IsExpiredAt(s.now()) {
		return nil, oops.Code(CodeBadRequest).
			With("request_id", req.ID.String()).
			Errorf(msgInvalidResetToken)
	}

	var (
		session     *Session
		refreshHash string
	)
	if caller.Owns(req.AccountID) {
		session, refreshHash, err = s.issueSession(req.AccountID, req.NewEmail)
		if err != nil {
			return nil, err
		}
	}

	var updated *Account
	err = s.retryOnConflict(ctx, func(ctx context.Context) error {
		return s.dir.WithTransaction(ctx, func(ctx context.Context, repos Repositories) error {
			if err := repos.EmailChanges().Delete(ctx, req.ID); err != nil {
				if errors.Is(err, ErrNotFound) {
					return oops.Code(CodeBadRequest).
						With("request_id", req.ID.String()).
						Errorf(msgInvalidToken)
				}
				return err
			}

			accounts := repos.Accounts()
			if other, err := accounts.GetByEmail(ctx, req.NewEmail); err == nil {
				if other.ID != req.AccountID {
					return oops.Code(CodeConflict).Errorf(msgEmailInUse)
				}
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}

			account, err := accounts.GetByID(ctx, req.AccountID)
			if err != nil {
				return err
			}
			account.Email = req.NewEmail
			account.RefreshTokenHashes = nil
			if refreshHash != "" {
				account.RefreshTokenHashes = []string{refreshHash}
			}
			if err := accounts.Update(ctx, account); err != nil {
				return err
			}
			updated = account
			return nil
		})
	})
	if err != nil {
		switch KindOf(err) {
		case KindBadRequest:
			return nil, err
		case KindConflict:
			if errors.Is(err, ErrDuplicate) {
				return nil, oops.Code(CodeConflict).Errorf(msgEmailInUse)
			}
			return nil, err
		}
		return nil, oops.Code("EMAIL_CHANGE_FAILED").
			With("operation", "apply change").
			With("account_id", req.AccountID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "email changed", "account_id", req.AccountID.String())
	s.sendAsync(ctx, updated.Email, emailChangedEmail, map[string]any{
		"Name":  updated.Name,
		"Email": updated.Email,
	})

	if session == nil {
		return &EmailChangeResult{}, nil
	}
	user := updated.Public()
	session.User = user
	return &EmailChangeResult{Session: session, User: &user}, nil
}
