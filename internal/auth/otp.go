// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// OTP configuration.
const (
	OTPExpiry  = 3 * time.Minute
	otpMin     = 100000
	otpSpan    = 900000 // codes are uniform over [100000, 999999]
	otpPurpose = "register"
)

// RegisterInput is the data needed to create a password account.
type RegisterInput struct {
	OTPToken string
	OTP      string
	Name     string
	Email    string
	Password string
}

// generateOTP returns a six digit code from crypto/rand.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", oops.Code("AUTH_OTP_GENERATE_FAILED").Wrap(err)
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// SendOTP mails a verification code to email and returns the purpose token
// the client must echo back. Nothing is stored server side.
func (s *Service) SendOTP(ctx context.Context, name, email string) (_ string, err error) {
	defer func() { recordOperation("send_otp", err) }()

	code, err := generateOTP()
	if err != nil {
		return "", err
	}
	otpHash, err := s.passwords.Hash(code)
	if err != nil {
		return "", oops.Code("AUTH_OTP_SEND_FAILED").
			With("operation", "hash code").
			Wrap(err)
	}

	token, _, err := s.tokens.Sign(Claims{
		Email:   email,
		Purpose: otpPurpose,
		OTPHash: otpHash,
	}, TokenPurpose, OTPExpiry)
	if err != nil {
		return "", err
	}

	body, err := otpEmail.render(map[string]any{
		"Name":    name,
		"Code":    code,
		"Minutes": int(OTPExpiry / time.Minute),
	})
	if err != nil {
		return "", err
	}
	if err := s.mailer.Send(ctx, email, otpEmail.subject, body); err != nil {
		return "", oops.Code("AUTH_OTP_SEND_FAILED").
			With("operation", "send email").
			Wrap(err)
	}
	return token, nil
}

// VerifyOTP reports whether token was issued by SendOTP for email with code,
// and has not expired.
func (s *Service) VerifyOTP(token, email, code string) bool {
	claims, err := s.tokens.Verify(token, TokenPurpose)
	if err != nil {
		return false
	}
	if claims.Purpose != otpPurpose || claims.Email != email {
		return false
	}
	return s.passwords.Verify(code, claims.OTPHash)
}

// Register creates a password account gated by a verified OTP and opens its
// first session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ *Session, err error) {
	defer func() { recordOperation("register", err) }()

	if !s.VerifyOTP(in.OTPToken, in.Email, in.OTP) {
		return nil, oops.Code(CodeBadRequest).
			With("email", in.Email).
			Errorf(msgInvalidOTP)
	}

	accounts := s.dir.Accounts()
	if _, err := accounts.GetByEmail(ctx, in.Email); err == nil {
		return nil, oops.Code(CodeConflict).Errorf(msgEmailInUse)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check email").
			Wrap(err)
	}

	passwordHash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	account, err := NewAccount(strings.TrimSpace(in.Name), in.Email, &passwordHash, nil)
	if err != nil {
		return nil, oops.Code(CodeBadRequest).
			With("reason", err.Error()).
			Errorf("invalid account details")
	}

	session, refreshHash, err := s.issueSession(account.ID, account.Email)
	if err != nil {
		return nil, err
	}
	account.RefreshTokenHashes = []string{refreshHash}

	if err := accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code(CodeConflict).Errorf(msgEmailInUse)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create account").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String())
	s.sendAsync(ctx, account.Email, welcomeEmail, map[string]any{"Name": account.Name})

	session.User = account.Public()
	return session, nil
}
