// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Flickmate Contributors

package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/oops"

	"github.com/flickmate/flickmate/internal/auth"
	"github.com/flickmate/flickmate/internal/gateway"
	"github.com/flickmate/flickmate/pkg/errutil"
)

// sessionData is the body returned with a new token pair. The refresh token
// travels only in its cookie.
type sessionData struct {
	AccessToken     string          `json:"accessToken"`
	AccessExpiresAt time.Time       `json:"accessTokenExpiresAt"`
	User            auth.PublicUser `json:"user"`
}

func (s *Server) issue(c *fiber.Ctx, status int, message string, session *auth.Session) error {
	s.setRefreshCookie(c, session.RefreshToken)
	return respond(c, status, message, sessionData{
		AccessToken:     session.AccessToken,
		AccessExpiresAt: session.AccessExpiresAt,
		User:            session.User,
	})
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	session, err := s.sessions.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return s.issue(c, fiber.StatusOK, "logged in", session)
}

func (s *Server) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	session, err := s.sessions.Register(c.UserContext(), auth.RegisterInput{
		OTPToken: req.OTPToken,
		OTP:      req.OTP,
		Name:     req.User.Name,
		Email:    req.User.Email,
		Password: req.User.Password,
	})
	if err != nil {
		return err
	}
	return s.issue(c, fiber.StatusCreated, "account created", session)
}

func (s *Server) sendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	token, err := s.sessions.SendOTP(c.UserContext(), req.Name, req.Email)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "verification code sent", fiber.Map{"token": token})
}

func (s *Server) verifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if !s.sessions.VerifyOTP(req.Token, req.Email, req.OTP) {
		return fail(c, fiber.StatusBadRequest, "invalid or expired verification code", fiber.Map{"valid": false})
	}
	return respond(c, fiber.StatusOK, "verification code is valid", fiber.Map{"valid": true})
}

func (s *Server) refresh(c *fiber.Ctx) error {
	token := c.Cookies(RefreshCookie)
	if token == "" {
		return oops.Code(auth.CodeUnauthorized).Errorf("refresh token is required")
	}
	session, err := s.sessions.Refresh(c.UserContext(), token)
	if err != nil {
		if auth.KindOf(err) == auth.KindUnauthorized {
			s.clearCookie(c, RefreshCookie)
		}
		return err
	}
	return s.issue(c, fiber.StatusOK, "token refreshed", session)
}

func (s *Server) forgetPassword(c *fiber.Ctx) error {
	var req forgetPasswordRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, s.sessions.ForgetPassword(c.UserContext(), req.Email), nil)
}

func (s *Server) resetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if err := s.sessions.ResetPassword(c.UserContext(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "password has been reset, sign in again", nil)
}

func (s *Server) changePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	identity := gateway.IdentityFrom(c)
	session, err := s.sessions.ChangePassword(c.UserContext(), identity.AccountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return s.issue(c, fiber.StatusOK, "password changed", session)
}

func (s *Server) changeEmailRequest(c *fiber.Ctx) error {
	var req changeEmailRequestBody
	if err := s.bind(c, &req); err != nil {
		return err
	}
	identity := gateway.IdentityFrom(c)
	if err := s.sessions.ChangeEmailRequest(c.UserContext(), identity.AccountID, identity.Email, req.NewEmail); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "confirmation link sent to the new address", nil)
}

func (s *Server) changeEmail(c *fiber.Ctx) error {
	var req changeEmailBody
	if err := s.bind(c, &req); err != nil {
		return err
	}
	result, err := s.sessions.ChangeEmail(c.UserContext(), req.Token, gateway.IdentityFrom(c))
	if err != nil {
		return err
	}
	if result.Session == nil {
		s.clearCookie(c, RefreshCookie)
		return respond(c, fiber.StatusOK, "email changed, sign in again", nil)
	}
	return s.issue(c, fiber.StatusOK, "email changed", result.Session)
}

func (s *Server) logout(c *fiber.Ctx) error {
	identity := gateway.IdentityFrom(c)
	err := s.sessions.Logout(c.UserContext(), identity.AccountID, c.Cookies(RefreshCookie), identity.Token)
	if err != nil {
		return err
	}
	s.clearCookie(c, RefreshCookie)
	return respond(c, fiber.StatusOK, "logged out", nil)
}

func (s *Server) me(c *fiber.Ctx) error {
	identity := gateway.IdentityFrom(c)
	if !identity.Authenticated {
		return respond(c, fiber.StatusOK, "", fiber.Map{"isAuthenticated": false})
	}
	user, err := s.sessions.CurrentUser(c.UserContext(), identity.AccountID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{
		"isAuthenticated": true,
		"user":            user,
	})
}

func (s *Server) oauthStart(c *fiber.Ctx) error {
	state, err := auth.GenerateState()
	if err != nil {
		return err
	}
	target, err := s.sessions.OAuthStartURL(state)
	if err != nil {
		return err
	}
	c.Cookie(s.cookie(StateCookie, state, stateTTL))
	return c.Redirect(target, fiber.StatusFound)
}

// oauthCallback always ends on the frontend. Failures carry the error kind
// in the oauthError query parameter; successes carry only the refresh cookie.
func (s *Server) oauthCallback(c *fiber.Ctx) error {
	expected := c.Cookies(StateCookie)
	s.clearCookie(c, StateCookie)

	err := auth.CheckOAuthState(expected, c.Query("state"))
	var session *auth.Session
	if err == nil {
		session, err = s.sessions.OAuthLogin(c.UserContext(), c.Query("code"))
	}
	if err != nil {
		if StatusFor(err) >= fiber.StatusInternalServerError {
			errutil.LogErrorContext(c.UserContext(), s.logger, "oauth callback failed", err)
		} else {
			s.logger.InfoContext(c.UserContext(), "oauth callback rejected", "kind", auth.KindOf(err).String())
		}
		return c.Redirect(s.cfg.FrontendURL+"?oauthError="+auth.KindOf(err).String(), fiber.StatusFound)
	}
	s.setRefreshCookie(c, session.RefreshToken)
	return c.Redirect(s.cfg.FrontendURL, fiber.StatusFound)
}
